package settings

import (
	"encoding/json"
	"fmt"

	"github.com/alexscott/userman/internal/db/models"
)

// kind discriminates the three states a stored setting can be in.
type kind int

const (
	kindAbsent kind = iota
	kindScalar
	kindArray
)

// Value is a setting value with explicit presence. An absent value is
// distinct from a stored empty string or false; precedence decisions
// hinge on that difference.
type Value struct {
	kind   kind
	scalar string
	array  []string
}

// Absent returns the no-row value.
func Absent() Value {
	return Value{}
}

// Scalar wraps a plain string value.
func Scalar(s string) Value {
	return Value{kind: kindScalar, scalar: s}
}

// Bool wraps a boolean, normalized to the stored "0"/"1" form.
func Bool(b bool) Value {
	if b {
		return Scalar("1")
	}

	return Scalar("0")
}

// Array wraps a list value.
func Array(elems []string) Value {
	return Value{kind: kindArray, array: elems}
}

// FromAny coerces the types callers pass to Set. Nil maps to Absent,
// which the store treats as a delete.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Absent(), nil
	case Value:
		return t, nil
	case string:
		return Scalar(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Scalar(fmt.Sprintf("%d", t)), nil
	case int64:
		return Scalar(fmt.Sprintf("%d", t)), nil
	case uint64:
		return Scalar(fmt.Sprintf("%d", t)), nil
	case []string:
		return Array(t), nil
	default:
		return Absent(), fmt.Errorf("%w: unsupported value type %T", ErrValueType, v)
	}
}

// FromRow decodes a stored row per its type tag.
func FromRow(val, typ string) (Value, error) {
	if typ != models.SettingTypeJSONArray {
		return Scalar(val), nil
	}

	var elems []string
	if err := json.Unmarshal([]byte(val), &elems); err != nil {
		return Absent(), fmt.Errorf("failed to decode array setting: %w", err)
	}

	return Array(elems), nil
}

// Row encodes the value back into its stored val/type pair.
func (v Value) Row() (string, string, error) {
	if v.kind == kindArray {
		raw, err := json.Marshal(v.array)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode array setting: %w", err)
		}

		return string(raw), models.SettingTypeJSONArray, nil
	}

	return v.scalar, "", nil
}

// Present reports whether a row exists for this value.
func (v Value) Present() bool {
	return v.kind != kindAbsent
}

// IsArray reports whether the value carries a list.
func (v Value) IsArray() bool {
	return v.kind == kindArray
}

// String returns the scalar form. Arrays and absent values yield "".
func (v Value) String() string {
	return v.scalar
}

// Strings returns the list form, nil for scalars and absent values.
func (v Value) Strings() []string {
	return v.array
}

// True reports whether a present scalar reads as true.
func (v Value) True() bool {
	return v.kind == kindScalar && (v.scalar == "1" || v.scalar == "true")
}

// Equal compares two values including presence and shape.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.scalar != o.scalar || len(v.array) != len(o.array) {
		return false
	}

	for i := range v.array {
		if v.array[i] != o.array[i] {
			return false
		}
	}

	return true
}
