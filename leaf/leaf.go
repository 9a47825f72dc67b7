// Package leaf implements the terminal nodes of a trajectory tree: typed
// Parameters and labeled Results. Parameter variants form a closed
// tagged union (scalar/array/pickle); each variant owns its own type
// predicate and its own serialize/deserialize pair.
package leaf

import (
	"fmt"

	"github.com/trajexplore/trajexplore/errs"
)

// Kind tags the concrete type of a tree node, stored alongside every node
// in the archive so the storage service can reconstruct the right Go type
// on load.
type Kind string

const (
	KindGroup           Kind = "group"
	KindScalarParameter Kind = "scalar-parameter"
	KindArrayParameter  Kind = "array-parameter"
	KindPickleParameter Kind = "pickle-parameter"
	KindResult          Kind = "result"
	KindLink            Kind = "link"
)

// Leaf is the common contract of every terminal tree node.
type Leaf interface {
	Name() string
	FullName() string
	SetFullName(name string)
	Kind() Kind
	Comment() string
	SetComment(comment string)
	Annotations() map[string]any
	SetAnnotation(key string, value any)
	// Empty reports whether the leaf's bulk data has been released via
	// MakeEmpty while its identity (name, metadata, range index for
	// parameters) is retained.
	Empty() bool
	// MakeEmpty releases heavy data, retaining identity.
	MakeEmpty()
}

// Parameter is a leaf holding exactly one default value and, optionally, an
// exploration range. It becomes locked the first time its
// value is read by a consumer.
type Parameter interface {
	Leaf

	// Locked reports whether the parameter has been read since it was
	// last unlocked.
	Locked() bool
	// Lock marks the parameter as read; further mutation of default
	// value or range fails with ErrParameterLocked until Unlock.
	Lock()
	// Unlock clears the locked flag explicitly.
	Unlock()

	// Supports reports whether v is an acceptable default/range value
	// for this parameter variant.
	Supports(v any) bool

	// Set installs the default value. Fails with ErrParameterLocked if
	// locked, ErrTypeMismatch if Supports(v) is false. Installing a new
	// default clears any existing range.
	Set(v any) error
	// Get returns the default value (or the pinned range value, see
	// runctx.Context) and locks the parameter.
	Get() (any, error)
	// GetUnlocked reads the default value without affecting lock state.
	// The range-installation path uses it so that installing a range
	// does not itself lock the parameter.
	GetUnlocked() any

	// HasRange reports whether an exploration range is installed.
	HasRange() bool
	// RangeLength returns the installed range's length, or 0.
	RangeLength() int
	// SetRange installs a brand-new range, replacing any existing one.
	SetRange(values []any) error
	// ExpandRange appends to an existing range.
	ExpandRange(values []any) error
	// RangeValue returns range[k].
	RangeValue(k int) (any, error)

	// Serialize encodes the parameter's default value, range and lock
	// state into an implementation-defined byte stream for the storage
	// service.
	Serialize() ([]byte, error)
	// Deserialize restores state previously produced by Serialize.
	Deserialize(blob []byte) error

	// Equal compares two parameters of the same variant element-wise.
	Equal(other Parameter) bool
}

// Item is a single named entry inside a Result.
type Item struct {
	Name  string
	Value any
}

// Result is a labeled bag of data items produced by a run.
type Result interface {
	Leaf

	// Set appends or overwrites named items. The first positional item
	// (Item{Name: ""}) is renamed to the leaf's own name.
	Set(items ...Item) error
	// Get returns the value stored under name.
	Get(name string) (any, error)
	// Items returns a copy of the name->value mapping.
	Items() map[string]any
	// ItemNames returns item names in insertion order.
	ItemNames() []string

	Serialize() ([]byte, error)
	Deserialize(blob []byte) error
}

// base implements the fields and methods shared by every leaf variant.
type base struct {
	name        string
	fullName    string
	comment     string
	annotations map[string]any
	empty       bool
}

func newBase(name string) base {
	return base{name: name, fullName: name, annotations: make(map[string]any)}
}

func (b *base) Name() string           { return b.name }
func (b *base) FullName() string       { return b.fullName }
func (b *base) SetFullName(name string) { b.fullName = name }
func (b *base) Comment() string        { return b.comment }
func (b *base) SetComment(c string)    { b.comment = c }
func (b *base) Annotations() map[string]any {
	cp := make(map[string]any, len(b.annotations))
	for k, v := range b.annotations {
		cp[k] = v
	}
	return cp
}
func (b *base) SetAnnotation(key string, value any) { b.annotations[key] = value }
func (b *base) Empty() bool                         { return b.empty }

// lockGuard returns ErrParameterLocked if locked is true, annotated with
// the leaf's full name for diagnostics.
func lockGuard(fullName string, locked bool) error {
	if locked {
		return fmt.Errorf("%w: %s", errs.ErrParameterLocked, fullName)
	}
	return nil
}
