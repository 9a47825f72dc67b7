package leaf

import (
	"fmt"

	"github.com/trajexplore/trajexplore/errs"
)

// scalarSupports enumerates the primitive Go types a ScalarParameter accepts,
// plus small homogeneous slices of them.
func scalarSupports(v any) bool {
	switch v.(type) {
	case bool, int, int64, float64, complex128, string:
		return true
	case []bool:
		return true
	case []int64:
		return true
	case []float64:
		return true
	case []string:
		return true
	default:
		return false
	}
}

// ScalarParameter is a single primitive value or small homogeneous typed
// array, with element-wise range storage and equality.
type ScalarParameter struct {
	base
	value    any
	ranges   []any
	locked   bool
}

// NewScalarParameter creates a ScalarParameter with default value v. Returns
// ErrTypeMismatch if v is not a supported scalar type.
func NewScalarParameter(name string, v any) (*ScalarParameter, error) {
	p := &ScalarParameter{base: newBase(name)}
	if err := p.Set(v); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ScalarParameter) Kind() Kind { return KindScalarParameter }

func (p *ScalarParameter) Supports(v any) bool { return scalarSupports(v) }

func (p *ScalarParameter) Locked() bool { return p.locked }
func (p *ScalarParameter) Lock()        { p.locked = true }
func (p *ScalarParameter) Unlock()      { p.locked = false }

func (p *ScalarParameter) Set(v any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	if !p.Supports(v) {
		return fmt.Errorf("%w: scalar parameter %s does not support %T", errs.ErrTypeMismatch, p.fullName, v)
	}
	p.value = v
	p.ranges = nil
	p.empty = false
	return nil
}

func (p *ScalarParameter) Get() (any, error) {
	p.locked = true
	return p.value, nil
}

func (p *ScalarParameter) GetUnlocked() any { return p.value }

func (p *ScalarParameter) HasRange() bool    { return p.ranges != nil }
func (p *ScalarParameter) RangeLength() int  { return len(p.ranges) }

func (p *ScalarParameter) SetRange(values []any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	for i, v := range values {
		if !p.Supports(v) {
			return fmt.Errorf("%w: scalar parameter %s range element %d is %T", errs.ErrTypeMismatch, p.fullName, i, v)
		}
	}
	p.ranges = append([]any(nil), values...)
	return nil
}

func (p *ScalarParameter) ExpandRange(values []any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	for i, v := range values {
		if !p.Supports(v) {
			return fmt.Errorf("%w: scalar parameter %s range element %d is %T", errs.ErrTypeMismatch, p.fullName, i, v)
		}
	}
	p.ranges = append(p.ranges, values...)
	return nil
}

func (p *ScalarParameter) RangeValue(k int) (any, error) {
	if k < 0 || k >= len(p.ranges) {
		return nil, fmt.Errorf("%w: range index %d out of bounds for %s (length %d)", errs.ErrSchema, k, p.fullName, len(p.ranges))
	}
	return p.ranges[k], nil
}

func (p *ScalarParameter) MakeEmpty() {
	p.value = nil
	p.empty = true
}

func (p *ScalarParameter) Equal(other Parameter) bool {
	o, ok := other.(*ScalarParameter)
	if !ok {
		return false
	}
	if !scalarValueEqual(p.value, o.value) {
		return false
	}
	if len(p.ranges) != len(o.ranges) {
		return false
	}
	for i := range p.ranges {
		if !scalarValueEqual(p.ranges[i], o.ranges[i]) {
			return false
		}
	}
	return true
}

func scalarValueEqual(a, b any) bool {
	switch av := a.(type) {
	case []bool:
		bv, ok := b.([]bool)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []int64:
		bv, ok := b.([]int64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []float64:
		bv, ok := b.([]float64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// scalarSerialForm is the wire shape shared by Serialize/Deserialize for
// ScalarParameter; exported fields so encoding/gob can handle it directly.
type scalarSerialForm struct {
	Value  any
	Ranges []any
	Locked bool
}

func (p *ScalarParameter) Serialize() ([]byte, error) {
	return gobEncode(scalarSerialForm{Value: p.value, Ranges: p.ranges, Locked: p.locked})
}

func (p *ScalarParameter) Deserialize(blob []byte) error {
	var f scalarSerialForm
	if err := gobDecode(blob, &f); err != nil {
		return err
	}
	p.value = f.Value
	p.ranges = f.Ranges
	p.locked = f.Locked
	return nil
}
