package process

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForProcessStateReportsZeroOnSuccess(t *testing.T) {
	cmd := exec.Command("true")
	require := assert.New(t)
	require.NoError(cmd.Run())

	code, err := ExitCodeForProcessState(cmd.ProcessState)
	require.NoError(err)
	require.Equal(0, code)
}

func TestExitCodeForProcessStateReportsNonZeroOnFailure(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 7")
	_ = cmd.Run()

	code, err := ExitCodeForProcessState(cmd.ProcessState)
	assert.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestDetachedProcessAttributesSetsNewSession(t *testing.T) {
	attrs := DetachedProcessAttributes()
	assert.NotNil(t, attrs)
	assert.True(t, attrs.Setsid)
}
