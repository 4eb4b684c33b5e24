//go:build !windows

package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortPathNameIsNoopOnPosix(t *testing.T) {
	name, err := shortPathName("/some/long/path")
	assert.NoError(t, err)
	assert.Equal(t, "", name)
}
