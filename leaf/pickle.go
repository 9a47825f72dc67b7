package leaf

import (
	"fmt"

	"github.com/trajexplore/trajexplore/errs"
)

// PickleParameter carries an arbitrary Go value that does not fit the
// scalar or array variants, serialized with encoding/gob under a caller
// supplied protocol tag. The protocol tag lets a
// loader recognize and register the concrete type before Deserialize runs.
type PickleParameter struct {
	base
	protocol string
	value    any
	ranges   []any
	locked   bool
}

// NewPickleParameter creates a PickleParameter. protocol identifies the
// concrete Go type family for downstream tooling; it is stored verbatim
// and never interpreted by this package.
func NewPickleParameter(name, protocol string, v any) (*PickleParameter, error) {
	p := &PickleParameter{base: newBase(name), protocol: protocol}
	if err := p.Set(v); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PickleParameter) Kind() Kind { return KindPickleParameter }

// Protocol returns the type-family tag supplied at construction.
func (p *PickleParameter) Protocol() string { return p.protocol }

// Supports accepts anything: the pickle variant is the catch-all for
// values the scalar and array variants reject.
func (p *PickleParameter) Supports(v any) bool { return true }

func (p *PickleParameter) Locked() bool { return p.locked }
func (p *PickleParameter) Lock()        { p.locked = true }
func (p *PickleParameter) Unlock()      { p.locked = false }

func (p *PickleParameter) Set(v any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	p.value = v
	p.ranges = nil
	p.empty = false
	return nil
}

func (p *PickleParameter) Get() (any, error) {
	p.locked = true
	return p.value, nil
}

func (p *PickleParameter) GetUnlocked() any { return p.value }

func (p *PickleParameter) HasRange() bool   { return p.ranges != nil }
func (p *PickleParameter) RangeLength() int { return len(p.ranges) }

func (p *PickleParameter) SetRange(values []any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	p.ranges = append([]any(nil), values...)
	return nil
}

func (p *PickleParameter) ExpandRange(values []any) error {
	if err := lockGuard(p.fullName, p.locked); err != nil {
		return err
	}
	p.ranges = append(p.ranges, values...)
	return nil
}

func (p *PickleParameter) RangeValue(k int) (any, error) {
	if k < 0 || k >= len(p.ranges) {
		return nil, fmt.Errorf("%w: range index %d out of bounds for %s (length %d)", errs.ErrSchema, k, p.fullName, len(p.ranges))
	}
	return p.ranges[k], nil
}

func (p *PickleParameter) MakeEmpty() {
	p.value = nil
	p.empty = true
}

// Equal compares protocol tags and gob-encoded byte forms, since pickled
// values are not guaranteed to support reflect.DeepEqual meaningfully
// (e.g. function-valued fields, channels).
func (p *PickleParameter) Equal(other Parameter) bool {
	o, ok := other.(*PickleParameter)
	if !ok || p.protocol != o.protocol || len(p.ranges) != len(o.ranges) {
		return false
	}
	pv, err1 := gobEncode(p.value)
	ov, err2 := gobEncode(o.value)
	if err1 != nil || err2 != nil {
		return false
	}
	if string(pv) != string(ov) {
		return false
	}
	for i := range p.ranges {
		a, err1 := gobEncode(p.ranges[i])
		b, err2 := gobEncode(o.ranges[i])
		if err1 != nil || err2 != nil || string(a) != string(b) {
			return false
		}
	}
	return true
}

type pickleSerialForm struct {
	Protocol string
	Value    any
	Ranges   []any
	Locked   bool
}

func (p *PickleParameter) Serialize() ([]byte, error) {
	return gobEncode(pickleSerialForm{Protocol: p.protocol, Value: p.value, Ranges: p.ranges, Locked: p.locked})
}

func (p *PickleParameter) Deserialize(blob []byte) error {
	var f pickleSerialForm
	if err := gobDecode(blob, &f); err != nil {
		return err
	}
	p.protocol = f.Protocol
	p.value = f.Value
	p.ranges = f.Ranges
	p.locked = f.Locked
	return nil
}
