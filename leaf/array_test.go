package leaf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupRange_PreservesFirstOccurrenceOrder(t *testing.T) {
	values := []any{
		[]float64{1, 2},
		[]float64{3, 4},
		[]float64{1, 2},
		[]float64{5, 6},
		[]float64{3, 4},
	}
	pool, indices := DedupRange(values)
	require.Len(t, pool, 3)
	assert.Equal(t, []int{0, 1, 0, 2, 1}, indices)

	reconstructed, err := ReconstructRange(pool, indices)
	require.NoError(t, err)
	assert.Equal(t, values, reconstructed)
}

func TestReconstructRange_RejectsOutOfBoundsIndex(t *testing.T) {
	_, err := ReconstructRange([]any{[]float64{1}}, []int{1})
	assert.Error(t, err)
}

func TestArrayParameter_SupportsSlicesAndArraysOnly(t *testing.T) {
	p, err := NewArrayParameter("a", []float64{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, p.Supports([][]float64{{1, 2}, {3, 4}}))
	assert.False(t, p.Supports(42))
	assert.False(t, p.Supports(nil))
}

func TestArrayParameter_SerializeDeserialize(t *testing.T) {
	p, err := NewArrayParameter("a", []float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, p.SetRange([]any{[]float64{1, 2, 3}, []float64{4, 5, 6}}))

	blob, err := p.Serialize()
	require.NoError(t, err)

	q, err := NewArrayParameter("a", []float64{0})
	require.NoError(t, err)
	require.NoError(t, q.Deserialize(blob))
	assert.True(t, p.Equal(q))
}
