package binding

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValueType is the declared type of a macro variable or stored value.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
)

// tokenPattern matches a whole-field {{name}} token.
var tokenPattern = regexp.MustCompile(`^\{\{(\w+)\}\}$`)

// ParseToken reports the variable name when s is exactly one {{name}} token.
func ParseToken(s string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FormatToken renders name as a {{name}} token.
func FormatToken(name string) string {
	return "{{" + name + "}}"
}

// Value is a scalar variable value: a string or a number.
//
// Values flow from macro call sites, the variable store and the process
// environment into command fields.
type Value struct {
	Type ValueType
	Str  string
	Num  float64
}

// String returns a string value.
func String(s string) Value {
	return Value{Type: TypeString, Str: s}
}

// Number returns a numeric value.
func Number(n float64) Value {
	return Value{Type: TypeNumber, Num: n}
}

// IsZero reports whether v holds nothing.
func (v Value) IsZero() bool {
	return v.Type == ""
}

// String renders the value as text. Whole numbers have no fraction.
func (v Value) String() string {
	if v.Type == TypeNumber {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// TokenName reports whether v is itself an unresolved {{name}} token.
func (v Value) TokenName() (string, bool) {
	if v.Type != TypeString {
		return "", false
	}
	return ParseToken(v.Str)
}

// Int converts the value to an int. Strings are parsed, which is how
// environment values reach numeric fields.
func (v Value) Int() (int, error) {
	switch v.Type {
	case TypeNumber:
		if v.Num != math.Trunc(v.Num) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, v.Num)
		}
		return int(v.Num), nil
	case TypeString:
		n, err := strconv.Atoi(v.Str)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, v.Str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: empty value", ErrTypeMismatch)
	}
}

// Bool converts the value to a bool.
func (v Value) Bool() (bool, error) {
	switch v.Type {
	case TypeNumber:
		return v.Num != 0, nil
	case TypeString:
		b, err := strconv.ParseBool(v.Str)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrTypeMismatch, v.Str)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: empty value", ErrTypeMismatch)
	}
}

// UnmarshalYAML decodes a scalar node. Integer and float tags become numbers;
// everything else is kept as a string.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: variable value must be a string or number", node.Line)
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		var n float64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*v = Number(n)
	default:
		*v = String(node.Value)
	}
	return nil
}

// MarshalYAML encodes the value as a plain scalar.
func (v Value) MarshalYAML() (any, error) {
	if v.Type == TypeNumber {
		return v.Num, nil
	}
	return v.Str, nil
}

// MarshalJSON encodes the value as a JSON string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Type == TypeNumber {
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts a JSON string or number.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	default:
		return fmt.Errorf("%w: value must be a string or number", ErrTypeMismatch)
	}
	return nil
}
