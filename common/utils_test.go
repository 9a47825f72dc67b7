package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv_FallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", GetEnv("TRAJEXPLORE_TEST_UNSET", "fallback"))

	t.Setenv("TRAJEXPLORE_TEST_SET", "value")
	assert.Equal(t, "value", GetEnv("TRAJEXPLORE_TEST_SET", "fallback"))
}

func TestGetEnvTyped_ParsesAndFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TRAJEXPLORE_TEST_INT", "42")
	t.Setenv("TRAJEXPLORE_TEST_FLOAT", "0.75")
	t.Setenv("TRAJEXPLORE_TEST_BOOL", "true")
	t.Setenv("TRAJEXPLORE_TEST_DUR", "90s")
	assert.Equal(t, 42, GetEnvInt("TRAJEXPLORE_TEST_INT", 7))
	assert.Equal(t, 0.75, GetEnvFloat("TRAJEXPLORE_TEST_FLOAT", 1.0))
	assert.True(t, GetEnvBool("TRAJEXPLORE_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("TRAJEXPLORE_TEST_DUR", time.Minute))

	t.Setenv("TRAJEXPLORE_TEST_INT", "not-a-number")
	t.Setenv("TRAJEXPLORE_TEST_BOOL", "maybe")
	assert.Equal(t, 7, GetEnvInt("TRAJEXPLORE_TEST_INT", 7))
	assert.False(t, GetEnvBool("TRAJEXPLORE_TEST_BOOL", false))
}
