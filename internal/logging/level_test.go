package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameToLevelRoundTripsKnownNames(t *testing.T) {
	cases := map[string]Level{
		"disabled": LevelDisabled,
		"error":    LevelError,
		"warn":     LevelWarn,
		"info":     LevelInfo,
		"debug":    LevelDebug,
		"trace":    LevelTrace,
	}
	for name, level := range cases {
		got, ok := NameToLevel(name)
		assert.True(t, ok, name)
		assert.Equal(t, level, got, name)
		assert.Equal(t, name, got.String())
	}
}

func TestNameToLevelUnknownNameDefaultsToInfo(t *testing.T) {
	got, ok := NameToLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, LevelInfo, got)
}

func TestLevelOrderingIsMonotonic(t *testing.T) {
	assert.Less(t, uint(LevelDisabled), uint(LevelError))
	assert.Less(t, uint(LevelError), uint(LevelWarn))
	assert.Less(t, uint(LevelWarn), uint(LevelInfo))
	assert.Less(t, uint(LevelInfo), uint(LevelDebug))
	assert.Less(t, uint(LevelDebug), uint(LevelTrace))
}
