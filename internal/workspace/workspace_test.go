package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

func TestEphemeralCreateAndCleanup(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Create())

	path := m.GetPath()
	require.DirExists(t, path)

	require.NoError(t, m.Cleanup())
	assert.NoDirExists(t, path)
	assert.Empty(t, m.GetPath())
}

func TestPersistentSurvivesCleanup(t *testing.T) {
	base := t.TempDir()
	m := NewPersistentManager(base, "working")
	require.NoError(t, m.Create())

	path := m.GetPath()
	assert.Equal(t, filepath.Join(base, "working"), path)

	marker := filepath.Join(path, "stage.txt")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o600))

	require.NoError(t, m.Cleanup())
	assert.FileExists(t, marker, "persistent working dir keeps intermediates")
}

func TestCreateSubdir(t *testing.T) {
	m := NewPersistentManager(t.TempDir(), "working")
	require.NoError(t, m.Create())

	sub, err := m.CreateSubdir("unpack")
	require.NoError(t, err)
	assert.DirExists(t, sub)

	_, err = NewManager(t.TempDir()).CreateSubdir("x")
	assert.Error(t, err, "subdir before Create is rejected")
}

func TestCreateFailureIsCategorized(t *testing.T) {
	base := t.TempDir()
	// A file squatting on the working path makes MkdirAll fail.
	require.NoError(t, os.WriteFile(filepath.Join(base, "working"), []byte("x"), 0o644))

	err := NewPersistentManager(base, "working").Create()
	require.Error(t, err)
	var pe *builderr.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, builderr.CategoryFileSystem, pe.Category)
}
