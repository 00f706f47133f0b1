package action

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// ValidatedParams is a parameter set that has passed the action's contract.
// Values are normalized to string, int, float64, bool, []string, or
// []map[string]any.
type ValidatedParams map[string]any

// String returns a string parameter (empty if absent).
func (p ValidatedParams) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Int returns an int parameter (zero if absent).
func (p ValidatedParams) Int(name string) int {
	v, _ := p[name].(int)
	return v
}

// Float returns a float parameter (zero if absent).
func (p ValidatedParams) Float(name string) float64 {
	v, _ := p[name].(float64)
	return v
}

// Bool returns a bool parameter (false if absent).
func (p ValidatedParams) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// Objects returns an object-list parameter (nil if absent).
func (p ValidatedParams) Objects(name string) []map[string]any {
	v, _ := p[name].([]map[string]any)
	return v
}

// Has reports whether the parameter was provided or defaulted.
func (p ValidatedParams) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// ValidateParams checks raw untyped input against the definition's contract.
// It fails closed: unknown extra fields, missing required fields, values of
// the wrong type, and constraint violations are all a ValidationError; the
// only silent fill-in is an explicitly declared default.
func ValidateParams(def Definition, raw map[string]any) (ValidatedParams, error) {
	specs := make(map[string]ParamSpec, len(def.Params))
	for _, p := range def.Params {
		specs[p.Name] = p
	}

	for name := range raw {
		if _, ok := specs[name]; !ok {
			return nil, &domain.ValidationError{Field: name, Message: "unknown parameter"}
		}
	}

	out := make(ValidatedParams, len(def.Params))
	for _, spec := range def.Params {
		v, present := raw[spec.Name]
		if !present || v == nil {
			if spec.Required {
				return nil, &domain.ValidationError{Field: spec.Name, Message: "required parameter missing"}
			}
			if spec.Default != nil {
				dv, err := coerce(spec, spec.Default)
				if err != nil {
					return nil, err
				}
				out[spec.Name] = dv
			}
			continue
		}

		cv, err := coerce(spec, v)
		if err != nil {
			return nil, err
		}
		if err := checkConstraints(spec, cv); err != nil {
			return nil, err
		}
		out[spec.Name] = cv
	}
	return out, nil
}

// coerce normalizes a raw value to the declared type. Ambiguity is an error:
// a numeric field never accepts a string, a fractional value never becomes an
// int.
func coerce(spec ParamSpec, v any) (any, error) {
	switch spec.Type {
	case ParamString:
		s, ok := v.(string)
		if !ok {
			return nil, typeErr(spec, "a string")
		}
		return s, nil

	case ParamInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, &domain.ValidationError{Field: spec.Name, Message: "expected a whole number"}
			}
			return int(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, typeErr(spec, "an integer")
			}
			return int(i), nil
		default:
			return nil, typeErr(spec, "an integer")
		}

	case ParamFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, typeErr(spec, "a number")
			}
			return f, nil
		default:
			return nil, typeErr(spec, "a number")
		}

	case ParamBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeErr(spec, "a boolean")
		}
		return b, nil

	case ParamStringList:
		switch list := v.(type) {
		case []string:
			return append([]string(nil), list...), nil
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, typeErr(spec, "a list of strings")
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, typeErr(spec, "a list of strings")
		}

	case ParamObjectList:
		switch list := v.(type) {
		case []map[string]any:
			return list, nil
		case []any:
			out := make([]map[string]any, 0, len(list))
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, typeErr(spec, "a list of objects")
				}
				out = append(out, m)
			}
			return out, nil
		default:
			return nil, typeErr(spec, "a list of objects")
		}
	}
	return nil, &domain.ConfigurationError{Message: fmt.Sprintf("parameter %q has unhandled type %q", spec.Name, spec.Type)}
}

func checkConstraints(spec ParamSpec, v any) error {
	var num float64
	var isNum bool
	switch n := v.(type) {
	case int:
		num, isNum = float64(n), true
	case float64:
		num, isNum = n, true
	}

	if isNum {
		if spec.Min != nil && num < *spec.Min {
			return &domain.ValidationError{Field: spec.Name, Message: fmt.Sprintf("must be at least %g", *spec.Min)}
		}
		if spec.Max != nil && num > *spec.Max {
			return &domain.ValidationError{Field: spec.Name, Message: fmt.Sprintf("must be at most %g", *spec.Max)}
		}
	}

	if s, ok := v.(string); ok {
		if spec.compiledPattern != nil && !spec.compiledPattern.MatchString(s) {
			return &domain.ValidationError{Field: spec.Name, Message: "does not match the expected format"}
		}
		if len(spec.Enum) > 0 {
			for _, e := range spec.Enum {
				if s == e {
					return nil
				}
			}
			return &domain.ValidationError{Field: spec.Name, Message: fmt.Sprintf("must be one of %v", spec.Enum)}
		}
	}
	return nil
}

func typeErr(spec ParamSpec, want string) error {
	return &domain.ValidationError{Field: spec.Name, Message: "expected " + want}
}
