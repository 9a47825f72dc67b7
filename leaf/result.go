package leaf

import "fmt"

// NamedResult is an ordered bag of data items produced by a single
// run. Item order is preserved for deterministic iteration and
// storage layout, though lookups by name are O(1).
type NamedResult struct {
	base
	order []string
	items map[string]any
}

// NewResult creates an empty NamedResult under name.
func NewResult(name string) *NamedResult {
	return &NamedResult{base: newBase(name), items: make(map[string]any)}
}

func (r *NamedResult) Kind() Kind { return KindResult }

// Set appends or overwrites named items. An item with an empty Name is the
// "first positional item" and is renamed to the leaf's own name.
func (r *NamedResult) Set(items ...Item) error {
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = r.name
		}
		if _, exists := r.items[name]; !exists {
			r.order = append(r.order, name)
		}
		r.items[name] = it.Value
	}
	r.empty = false
	return nil
}

func (r *NamedResult) Get(name string) (any, error) {
	v, ok := r.items[name]
	if !ok {
		return nil, fmt.Errorf("result %s has no item %q", r.fullName, name)
	}
	return v, nil
}

func (r *NamedResult) Items() map[string]any {
	cp := make(map[string]any, len(r.items))
	for k, v := range r.items {
		cp[k] = v
	}
	return cp
}

func (r *NamedResult) ItemNames() []string {
	return append([]string(nil), r.order...)
}

func (r *NamedResult) MakeEmpty() {
	r.order = nil
	r.items = make(map[string]any)
	r.empty = true
}

type resultSerialForm struct {
	Order []string
	Items map[string]any
}

func (r *NamedResult) Serialize() ([]byte, error) {
	return gobEncode(resultSerialForm{Order: r.order, Items: r.items})
}

func (r *NamedResult) Deserialize(blob []byte) error {
	var f resultSerialForm
	if err := gobDecode(blob, &f); err != nil {
		return err
	}
	r.order = f.Order
	r.items = f.Items
	if r.items == nil {
		r.items = make(map[string]any)
	}
	return nil
}
