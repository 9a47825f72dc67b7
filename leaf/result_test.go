package leaf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedResult_FirstPositionalItemTakesLeafName(t *testing.T) {
	r := NewResult("trial_0")
	require.NoError(t, r.Set(Item{Value: 3.14}, Item{Name: "variance", Value: 0.01}))

	v, err := r.Get("trial_0")
	require.NoError(t, err)
	assert.Equal(t, 3.14, v)
	assert.Equal(t, []string{"trial_0", "variance"}, r.ItemNames())
}

func TestNamedResult_SetOverwritesExistingName(t *testing.T) {
	r := NewResult("trial_0")
	require.NoError(t, r.Set(Item{Name: "loss", Value: 1.0}))
	require.NoError(t, r.Set(Item{Name: "loss", Value: 0.5}))

	v, err := r.Get("loss")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
	assert.Equal(t, []string{"loss"}, r.ItemNames())
}

func TestNamedResult_SerializeDeserialize(t *testing.T) {
	r := NewResult("trial_0")
	require.NoError(t, r.Set(Item{Value: "ok"}, Item{Name: "count", Value: 7}))

	blob, err := r.Serialize()
	require.NoError(t, err)

	out := NewResult("trial_0")
	require.NoError(t, out.Deserialize(blob))
	assert.Equal(t, r.Items(), out.Items())
	assert.Equal(t, r.ItemNames(), out.ItemNames())
}

func TestNamedResult_MakeEmptyClearsItemsButKeepsIdentity(t *testing.T) {
	r := NewResult("trial_0")
	require.NoError(t, r.Set(Item{Value: 1}))
	r.MakeEmpty()
	assert.True(t, r.Empty())
	assert.Empty(t, r.Items())
	assert.Equal(t, "trial_0", r.Name())
}
