package leaf

import (
	"bytes"
	"encoding/gob"
)

// init registers the concrete types that can appear inside an `any`-typed
// field so encoding/gob can round-trip them. Pickle parameters additionally
// register caller-supplied types via RegisterPickleType.
//
// Pickle parameters are a generic escape hatch with no other caller for
// a dedicated serialization dependency in this module, and gob is the
// standard library's purpose-built tool for "serialize arbitrary
// registered Go values."
func init() {
	gob.Register([]bool{})
	gob.Register([]int64{})
	gob.Register([]float64{})
	gob.Register([]string{})
	gob.Register(complex128(0))
}

// RegisterPickleType registers a concrete type so values of that type can
// be carried by a PickleParameter. Call once per type at program startup,
// mirroring encoding/gob's own registration contract.
func RegisterPickleType(v any) {
	gob.Register(v)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(blob []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(blob)).Decode(v)
}
