package tools

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/coerce"
)

// decodeArgs decodes a tool's generic argument map into a typed struct via
// a JSON round-trip. Every concrete tool implementation in this package
// uses this instead of hand-rolled type assertions per field. Before the
// round-trip, list-typed fields are run through coerce so an LLM-supplied
// comma string or bare scalar doesn't fail with a generic json error.
func decodeArgs(args map[string]any, target any) error {
	normalized, err := normalizeListArgs(args, target)
	if err != nil {
		return apperr.Validationf("invalid arguments: %v", err)
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return apperr.Validationf("invalid arguments: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return apperr.Validationf("invalid arguments: %v", err)
	}
	return nil
}

var (
	int64SliceType  = reflect.TypeOf([]int64{})
	stringSliceType = reflect.TypeOf([]string{})
)

// normalizeListArgs coerces every []int64/[]string field target declares
// (including pointer-to-slice "optional, set if present" fields) from
// whatever shape the caller sent it in: a single scalar, a comma-separated
// string, or a JSON-array string, in addition to a proper JSON array.
func normalizeListArgs(args map[string]any, target any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	t := reflect.TypeOf(target)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return out, nil
	}
	t = t.Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		value, present := out[name]
		if !present || value == nil {
			continue
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		switch ft {
		case int64SliceType:
			coerced, err := coerce.ToIntList(value, name)
			if err != nil {
				return nil, err
			}
			out[name] = coerced
		case stringSliceType:
			coerced, err := coerce.ToStringList(value, false, name)
			if err != nil {
				return nil, err
			}
			out[name] = coerced
		}
	}
	return out, nil
}
