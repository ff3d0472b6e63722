package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.NoError(t, exitCode(0))
	err := exitCode(2)
	require.Error(t, err)
	var code *codeError
	require.ErrorAs(t, err, &code)
	assert.Equal(t, 2, code.code)
}

func TestFailed(t *testing.T) {
	t.Parallel()

	assert.NoError(t, failed(nil))
	err := failed(assert.AnError)
	var failure *runError
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestValidateBackupArgs(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateBackupArgs(backupCmd, nil))
	assert.NoError(t, validateBackupArgs(backupCmd, []string{"m1", "m2"}))
	assert.Error(t, validateBackupArgs(backupCmd, []string{"m1"}))
	assert.Error(t, validateBackupArgs(backupCmd, []string{"a", "b", "c"}))
}
