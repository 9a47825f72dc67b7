package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmission_NoCapsAlwaysAllows(t *testing.T) {
	a := newAdmission(1.0, 1.0, 1.0)
	assert.True(t, a.allow(context.Background()))
}

func TestAdmission_ClampsOutOfRangeCaps(t *testing.T) {
	a := newAdmission(0, -1, 2.0)
	assert.Equal(t, 1.0, a.cpuCap)
	assert.Equal(t, 1.0, a.memCap)
	assert.Equal(t, 1.0, a.swapCap)
}

func TestAdmission_FirstSlotBypassesCaps(t *testing.T) {
	a := newAdmission(0.0001, 1.0, 1.0) // effectively always over cap
	stop := make(chan struct{})

	// with nothing in flight the first admit must succeed regardless of
	// load, so one worker always makes progress
	assert.True(t, a.admit(context.Background(), stop))

	// a second slot gates on the cap and bails out on stop
	close(stop)
	assert.False(t, a.admit(context.Background(), stop))

	// releasing the held slot re-arms the exemption
	a.release()
	assert.True(t, a.admit(context.Background(), stop))
}
