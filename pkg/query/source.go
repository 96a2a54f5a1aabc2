package query

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ParamDecl declares one parameter of a query source.
type ParamDecl struct {
	Type        string      `yaml:"type"`
	Required    bool        `yaml:"required"`
	Default     interface{} `yaml:"default"`
	Description string      `yaml:"description"`
}

// Source describes a single retrievable query: its owning family, the
// KQL/SQL template and the declared parameter set. Sources are immutable
// once loaded.
type Source struct {
	Name        string               `yaml:"-"`
	Family      string               `yaml:"-"`
	Description string               `yaml:"description"`
	Query       string               `yaml:"query"`
	Table       string               `yaml:"table"`
	Params      map[string]ParamDecl `yaml:"params"`
}

// Key returns the fully-qualified "family.name" identifier.
func (s *Source) Key() string {
	return s.Family + "." + s.Name
}

// RequiredParams returns the names of parameters declared required.
func (s *Source) RequiredParams() map[string]ParamDecl {
	out := make(map[string]ParamDecl)
	for name, decl := range s.Params {
		if decl.Required {
			out[name] = decl
		}
	}
	return out
}

// Render substitutes parameter values into the query template. Every
// `{name}` placeholder must resolve from params, the declared default,
// or be a declared-optional parameter (rendered empty). Undeclared
// params passed by the caller are ignored.
func (s *Source) Render(params map[string]interface{}) (string, error) {
	text := s.Query
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl := s.Params[name]
		val, ok := params[name]
		if !ok || val == nil {
			if decl.Default != nil {
				val = decl.Default
			} else if decl.Required {
				return "", fmt.Errorf("query %s: missing required parameter %q", s.Key(), name)
			} else {
				val = ""
			}
		}
		rendered, err := renderValue(val, decl.Type)
		if err != nil {
			return "", fmt.Errorf("query %s, parameter %q: %w", s.Key(), name, err)
		}
		text = strings.ReplaceAll(text, "{"+name+"}", rendered)
	}
	return text, nil
}

// renderValue formats a parameter value for inclusion in query text.
func renderValue(val interface{}, declType string) (string, error) {
	switch declType {
	case "datetime":
		switch v := val.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339), nil
		case string:
			return v, nil
		}
		return "", fmt.Errorf("cannot render %T as datetime", val)
	case "list":
		items, err := toStringList(val)
		if err != nil {
			return "", err
		}
		quoted := make([]string, len(items))
		for i, item := range items {
			quoted[i] = "'" + strings.ReplaceAll(item, "'", "\\'") + "'"
		}
		return "(" + strings.Join(quoted, ", ") + ")", nil
	case "int":
		return fmt.Sprintf("%v", val), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

func toStringList(val interface{}) ([]string, error) {
	switch v := val.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out, nil
	case string:
		return []string{v}, nil
	}
	return nil, fmt.Errorf("cannot render %T as list", val)
}
