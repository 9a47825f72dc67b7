package leaf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trajexplore/trajexplore/errs"
)

func TestScalarParameter_SetAndGet(t *testing.T) {
	p, err := NewScalarParameter("x", 42)
	require.NoError(t, err)
	assert.Equal(t, KindScalarParameter, p.Kind())
	assert.False(t, p.Locked())

	v, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, p.Locked())
}

func TestScalarParameter_RejectsUnsupportedType(t *testing.T) {
	_, err := NewScalarParameter("x", map[string]int{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTypeMismatch))
}

func TestScalarParameter_LockGuardsMutation(t *testing.T) {
	p, err := NewScalarParameter("x", 1)
	require.NoError(t, err)
	_, err = p.Get()
	require.NoError(t, err)

	err = p.Set(2)
	assert.True(t, errors.Is(err, errs.ErrParameterLocked))

	err = p.SetRange([]any{1, 2, 3})
	assert.True(t, errors.Is(err, errs.ErrParameterLocked))

	p.Unlock()
	require.NoError(t, p.Set(2))
}

func TestScalarParameter_RangeRoundTrip(t *testing.T) {
	p, err := NewScalarParameter("x", 1.0)
	require.NoError(t, err)
	require.NoError(t, p.SetRange([]any{1.0, 2.0, 3.0}))
	assert.Equal(t, 3, p.RangeLength())

	v, err := p.RangeValue(1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	_, err = p.RangeValue(3)
	assert.True(t, errors.Is(err, errs.ErrSchema))
}

func TestScalarParameter_SerializeDeserialize(t *testing.T) {
	p, err := NewScalarParameter("x", []float64{1.5, 2.5})
	require.NoError(t, err)
	require.NoError(t, p.SetRange([]any{[]float64{1.5, 2.5}, []float64{3.5, 4.5}}))

	blob, err := p.Serialize()
	require.NoError(t, err)

	q, err := NewScalarParameter("x", 0)
	require.NoError(t, err)
	require.NoError(t, q.Deserialize(blob))
	assert.True(t, p.Equal(q))
}

func TestScalarParameter_Equal(t *testing.T) {
	a, _ := NewScalarParameter("x", 1)
	b, _ := NewScalarParameter("x", 1)
	assert.True(t, a.Equal(b))

	c, _ := NewScalarParameter("x", 2)
	assert.False(t, a.Equal(c))
}
