// Package scope implements the scope grammar and two-layer resolver: a
// comma-separated token grammar over tool categories, and an
// instance-scope/session-scope intersection model.
package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forgetful-ai/forgetful/internal/apperr"
)

// Category is one of the tool categories a scope token can name.
type Category string

const (
	CategoryUser         Category = "user"
	CategoryMemory       Category = "memory"
	CategoryProject      Category = "project"
	CategoryCodeArtifact Category = "code_artifact"
	CategoryDocument     Category = "document"
	CategoryEntity       Category = "entity"
	CategoryLinking      Category = "linking"
)

var validCategories = map[Category]bool{
	CategoryUser: true, CategoryMemory: true, CategoryProject: true,
	CategoryCodeArtifact: true, CategoryDocument: true, CategoryEntity: true,
	CategoryLinking: true,
}

// ToolInfo is the minimal view of a registered tool the resolver needs:
// its name, category, and whether it mutates state. internal/tools'
// registry satisfies this via a small adapter so this package never
// imports the registry (avoiding a dependency cycle, since the registry
// itself calls into scope to enforce permissions).
type ToolInfo struct {
	Name     string
	Category Category
	Mutates  bool
}

// Scopes is a validated, deduplicated set of scope tokens.
type Scopes map[string]bool

// All is the "*" wildcard scope: every tool, unconditionally.
const All = "*"

// ParseScopes validates a comma-separated scope string against the
// grammar: "*", "read", "write", "read:<category>", "write:<category>".
// Unknown actions or categories are rejected with a precise error naming
// the valid set.
func ParseScopes(scopeString string) (Scopes, error) {
	raw := strings.TrimSpace(scopeString)
	if raw == "" {
		return nil, apperr.Validationf("scope string cannot be empty")
	}

	tokens := make(Scopes)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if err := validateToken(t); err != nil {
			return nil, err
		}
		tokens[t] = true
	}
	if len(tokens) == 0 {
		return nil, apperr.Validationf("scope string cannot be empty")
	}
	return tokens, nil
}

func validateToken(token string) error {
	if token == All {
		return nil
	}
	if token == "read" || token == "write" {
		return nil
	}
	if action, category, ok := strings.Cut(token, ":"); ok {
		if action != "read" && action != "write" {
			return apperr.Validationf("invalid scope action %q in %q. Valid actions: read, write", action, token)
		}
		if !validCategories[Category(category)] {
			return apperr.Validationf("invalid scope category %q in %q. Valid categories: %s", category, token, validCategoryList())
		}
		return nil
	}
	return apperr.Validationf("invalid scope token %q. Valid formats: *, read, write, read:<category>, write:<category>", token)
}

func validCategoryList() string {
	cats := make([]string, 0, len(validCategories))
	for c := range validCategories {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	return strings.Join(cats, ", ")
}

// ResolvePermittedTools resolves scope tokens to a set of permitted tool
// names against the given tool set.
func ResolvePermittedTools(scopes Scopes, tools []ToolInfo) map[string]bool {
	if scopes[All] {
		permitted := make(map[string]bool, len(tools))
		for _, t := range tools {
			permitted[t.Name] = true
		}
		return permitted
	}

	permitted := make(map[string]bool)
	for token := range scopes {
		if action, category, ok := strings.Cut(token, ":"); ok {
			wantMutates := action == "write"
			for _, t := range tools {
				if string(t.Category) == category && t.Mutates == wantMutates {
					permitted[t.Name] = true
				}
			}
			continue
		}
		wantMutates := token == "write"
		for _, t := range tools {
			if t.Mutates == wantMutates {
				permitted[t.Name] = true
			}
		}
	}
	return permitted
}

// RequiredScope names the scope token that would permit invoking tool,
// for use in PermissionDenied error messages.
func RequiredScope(tool ToolInfo) string {
	action := "read"
	if tool.Mutates {
		action = "write"
	}
	return fmt.Sprintf("%s:%s", action, tool.Category)
}

// EffectiveScope computes the two-layer effective permitted set: an
// instance scope is an upper bound; a session scope (when present)
// narrows it via intersection. Absent a session scope, the instance
// bound applies unchanged.
func EffectiveScope(instance, session Scopes, tools []ToolInfo) map[string]bool {
	instancePermitted := ResolvePermittedTools(instance, tools)
	if session == nil {
		return instancePermitted
	}

	sessionPermitted := ResolvePermittedTools(session, tools)
	effective := make(map[string]bool)
	for name := range instancePermitted {
		if sessionPermitted[name] {
			effective[name] = true
		}
	}
	return effective
}
