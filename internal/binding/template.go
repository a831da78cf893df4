package binding

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is a command field that holds either a literal value or a
// {{name}} token still waiting for substitution. The zero Template is unset.
type Template[T any] struct {
	set   bool
	token string
	value T
}

// Literal returns a template holding v.
func Literal[T any](v T) Template[T] {
	return Template[T]{set: true, value: v}
}

// Token returns a template holding an unresolved {{name}} token.
func Token[T any](name string) Template[T] {
	return Template[T]{set: true, token: name}
}

// IsSet reports whether the field was given at all.
func (t Template[T]) IsSet() bool { return t.set }

// IsToken reports whether the field still holds a token.
func (t Template[T]) IsToken() bool { return t.set && t.token != "" }

// TokenName returns the token's variable name, or "" for literals.
func (t Template[T]) TokenName() string { return t.token }

// Value returns the literal value. ok is false for tokens and unset fields.
func (t Template[T]) Value() (v T, ok bool) {
	if !t.set || t.token != "" {
		return v, false
	}
	return t.value, true
}

// Or returns the literal value, or def when the field is unset or a token.
func (t Template[T]) Or(def T) T {
	if v, ok := t.Value(); ok {
		return v
	}
	return def
}

// Bind converts a variable value into a literal of the field's type.
// A value that is itself a token yields a token template, deferring
// resolution to a later layer.
func (t Template[T]) Bind(v Value) (Template[T], error) {
	if name, ok := v.TokenName(); ok {
		return Token[T](name), nil
	}

	var out T
	switch p := any(&out).(type) {
	case *string:
		*p = v.String()
	case *int:
		n, err := v.Int()
		if err != nil {
			return t, err
		}
		*p = n
	case *bool:
		b, err := v.Bool()
		if err != nil {
			return t, err
		}
		*p = b
	case *Keys:
		*p = Keys{v.String()}
	default:
		return t, fmt.Errorf("%w: unsupported field type %T", ErrTypeMismatch, out)
	}
	return Literal(out), nil
}

// UnmarshalYAML decodes either a whole-field token or a literal of type T.
func (t *Template[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.ShortTag() == "!!null" {
		*t = Template[T]{}
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!str" {
		if name, ok := ParseToken(node.Value); ok {
			*t = Token[T](name)
			return nil
		}
	}
	var v T
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = Literal(v)
	return nil
}

// raw returns the field as it would appear in a bindings file.
func (t Template[T]) raw() (any, bool) {
	if !t.set {
		return nil, false
	}
	if t.token != "" {
		return FormatToken(t.token), true
	}
	return t.value, true
}

// MarshalJSON encodes the field as its literal or "{{name}}" text.
func (t Template[T]) MarshalJSON() ([]byte, error) {
	v, ok := t.raw()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// String renders the field for logs.
func (t Template[T]) String() string {
	v, ok := t.raw()
	if !ok {
		return "<unset>"
	}
	return fmt.Sprint(v)
}

// Keys is a list of key names. A bindings file may give a single key or a list.
type Keys []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (k *Keys) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*k = Keys{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*k = list
		return nil
	default:
		return fmt.Errorf("line %d: keys must be a string or a list of strings", node.Line)
	}
}

// String joins the keys with "+".
func (k Keys) String() string {
	return strings.Join(k, "+")
}
