// Package coerce handles flexible LLM tool-call input by coercing common
// variations into the types a tool actually expects, so a meta-tool
// invocation doesn't reject a reasonable-looking argument with a cryptic
// validation error. It works against Go's JSON-decoded any-typed
// argument maps (numbers decode to float64, arrays to []any).
package coerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToIntList coerces a tool argument into []int64. Accepts nil (-> nil),
// a []any of numbers/strings, a single number, or a string holding a JSON
// array ("[3, 7]"), a comma-separated list ("3,7"), or a single integer
// ("3").
func ToIntList(value any, paramName string) ([]int64, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			n, err := toInt64(item)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid list of integers: %v", paramName, value)
			}
			out = append(out, n)
		}
		return out, nil
	case float64:
		return []int64{int64(v)}, nil
	case int:
		return []int64{int64(v)}, nil
	case int64:
		return []int64{v}, nil
	case string:
		return stringToIntList(v, paramName)
	default:
		return nil, fmt.Errorf("%s: cannot coerce %T to list of integers: %v", paramName, value, value)
	}
}

func stringToIntList(s, paramName string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var parsed []any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			out := make([]int64, 0, len(parsed))
			for _, item := range parsed {
				n, err := toInt64(item)
				if err != nil {
					return nil, fmt.Errorf("%s: invalid list of integers: %s", paramName, s)
				}
				out = append(out, n)
			}
			return out, nil
		}
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		out := make([]int64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid comma-separated integers: %s", paramName, s)
			}
			out = append(out, n)
		}
		return out, nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid integer string: %s", paramName, s)
	}
	return []int64{n}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

// ToStringList coerces a tool argument into []string. Accepts nil
// (-> nil, or an error if required), a []any/[]string of values, a JSON
// array string, a comma-separated string, or a single bare string.
// Empty entries are filtered out.
func ToStringList(value any, required bool, paramName string) ([]string, error) {
	if value == nil {
		if required {
			return nil, fmt.Errorf("%s is required", paramName)
		}
		return nil, nil
	}

	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				out = append(out, s)
			}
		}
		if required && len(out) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		return out, nil
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s := strings.TrimSpace(item)
			if s != "" {
				out = append(out, s)
			}
		}
		if required && len(out) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		return out, nil
	case string:
		return stringToStringList(v, required, paramName)
	default:
		return nil, fmt.Errorf("cannot coerce %T to list of strings: %v", value, value)
	}
}

func stringToStringList(s string, required bool, paramName string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if required {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		return nil, nil
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var parsed []any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			out := make([]string, 0, len(parsed))
			for _, item := range parsed {
				v := strings.TrimSpace(fmt.Sprint(item))
				if v != "" {
					out = append(out, v)
				}
			}
			if required && len(out) == 0 {
				return nil, fmt.Errorf("%s cannot be empty", paramName)
			}
			return out, nil
		}
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		if required && len(out) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		return out, nil
	}

	return []string{s}, nil
}
