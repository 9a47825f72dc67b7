package leaf

import (
	"fmt"
	"reflect"

	"github.com/trajexplore/trajexplore/errs"
)

// ArrayParameter holds a large homogeneous array/tuple value. Its
// exploration range is deduplicated at store time: identical array values
// are kept once in a pool and the range is represented as an ordered list
// of indices into that pool.
type ArrayParameter struct {
	base
	value  any
	ranges []any
	locked bool
}

// NewArrayParameter creates an ArrayParameter with default value v, which
// must be a slice or array.
func NewArrayParameter(name string, v any) (*ArrayParameter, error) {
	p := &ArrayParameter{base: newBase(name)}
	if err := p.Set(v); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ArrayParameter) Kind() Kind { return KindArrayParameter }

func (p *ArrayParameter) Supports(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func (p *ArrayParameter) Locked() bool { return p.locked }
func (p *ArrayParameter) Lock()        { p.locked = true }
func (p *ArrayParameter) Unlock()      { p.locked = false }

func (p *ArrayParameter) Set(v any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	if !p.Supports(v) {
		return fmt.Errorf("%w: array parameter %s does not support %T", errs.ErrTypeMismatch, p.fullName, v)
	}
	p.value = v
	p.ranges = nil
	p.empty = false
	return nil
}

func (p *ArrayParameter) Get() (any, error) {
	p.locked = true
	return p.value, nil
}

func (p *ArrayParameter) GetUnlocked() any { return p.value }

func (p *ArrayParameter) HasRange() bool   { return p.ranges != nil }
func (p *ArrayParameter) RangeLength() int { return len(p.ranges) }

func (p *ArrayParameter) SetRange(values []any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	for i, v := range values {
		if !p.Supports(v) {
			return fmt.Errorf("%w: array parameter %s range element %d is %T", errs.ErrTypeMismatch, p.fullName, i, v)
		}
	}
	p.ranges = append([]any(nil), values...)
	return nil
}

func (p *ArrayParameter) ExpandRange(values []any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	for i, v := range values {
		if !p.Supports(v) {
			return fmt.Errorf("%w: array parameter %s range element %d is %T", errs.ErrTypeMismatch, p.fullName, i, v)
		}
	}
	p.ranges = append(p.ranges, values...)
	return nil
}

func (p *ArrayParameter) RangeValue(k int) (any, error) {
	if k < 0 || k >= len(p.ranges) {
		return nil, fmt.Errorf("%w: range index %d out of bounds for %s (length %d)", errs.ErrSchema, k, p.fullName, len(p.ranges))
	}
	return p.ranges[k], nil
}

func (p *ArrayParameter) MakeEmpty() {
	p.value = nil
	p.empty = true
}

func (p *ArrayParameter) Equal(other Parameter) bool {
	o, ok := other.(*ArrayParameter)
	if !ok {
		return false
	}
	if !reflect.DeepEqual(p.value, o.value) {
		return false
	}
	if len(p.ranges) != len(o.ranges) {
		return false
	}
	for i := range p.ranges {
		if !reflect.DeepEqual(p.ranges[i], o.ranges[i]) {
			return false
		}
	}
	return true
}

// DedupRange computes the unique-value pool and index sequence for an
// array parameter's range, preserving first-occurrence order. Given
// R = [v0, v1, ..., v_{N-1}], returns U (the pool) and I
// where I[k] is the index of v_k in U.
func DedupRange(values []any) (pool []any, indices []int) {
	indices = make([]int, len(values))
	for k, v := range values {
		found := -1
		for i, u := range pool {
			if reflect.DeepEqual(u, v) {
				found = i
				break
			}
		}
		if found == -1 {
			pool = append(pool, v)
			found = len(pool) - 1
		}
		indices[k] = found
	}
	return pool, indices
}

// ReconstructRange inverts DedupRange: given a pool and an index sequence,
// rebuilds the original ordered range.
func ReconstructRange(pool []any, indices []int) ([]any, error) {
	values := make([]any, len(indices))
	for k, idx := range indices {
		if idx < 0 || idx >= len(pool) {
			return nil, fmt.Errorf("%w: range index %d out of bounds for pool of size %d", errs.ErrSchema, idx, len(pool))
		}
		values[k] = pool[idx]
	}
	return values, nil
}

type arraySerialForm struct {
	Value  any
	Ranges []any
	Locked bool
}

func (p *ArrayParameter) Serialize() ([]byte, error) {
	return gobEncode(arraySerialForm{Value: p.value, Ranges: p.ranges, Locked: p.locked})
}

func (p *ArrayParameter) Deserialize(blob []byte) error {
	var f arraySerialForm
	if err := gobDecode(blob, &f); err != nil {
		return err
	}
	p.value = f.Value
	p.ranges = f.Ranges
	p.locked = f.Locked
	return nil
}
