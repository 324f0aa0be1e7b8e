package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepress/internal/custody"
)

// initRepo creates a local repository with one commit and returns its path
// and head hash.
func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# repo"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("readme.md")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestGitSourceStepClonesAndRecordsHead(t *testing.T) {
	repoDir, head := initRepo(t)
	desc := writeSource(t, "theme.git", fmt.Sprintf("url = %q\n", repoDir))
	dest := filepath.Join(t.TempDir(), "theme")

	result, err := (&GitSourceStep{}).Run(context.Background(), desc, []string{dest})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "readme.md"))

	require.NotNil(t, result)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "git:"+repoDir, result.Sources[1].String())

	// Checkout files are declared outputs; repository internals are not.
	require.NotEmpty(t, result.Outputs)
	assert.Equal(t, dest, result.Outputs[0])
	assert.Contains(t, result.Outputs, filepath.Join(dest, "readme.md"))
	for _, out := range result.Outputs {
		assert.NotContains(t, out, string(filepath.Separator)+".git"+string(filepath.Separator))
	}

	fresh, err := checkGitRemote(custody.NewEntry(EntryTypeGit, repoDir,
		map[string]any{fieldHash: head, fieldRef: ""}))
	require.NoError(t, err)
	assert.True(t, fresh, "remote head matches the recorded hash")

	fresh, err = checkGitRemote(custody.NewEntry(EntryTypeGit, repoDir,
		map[string]any{fieldHash: "0000000000000000000000000000000000000000", fieldRef: ""}))
	require.NoError(t, err)
	assert.False(t, fresh, "remote moved past the recorded hash")
}

func TestGitSourceStepRejectsBadDescriptor(t *testing.T) {
	desc := writeSource(t, "empty.git", "")
	_, err := (&GitSourceStep{}).Run(context.Background(), desc,
		[]string{filepath.Join(t.TempDir(), "theme")})
	require.Error(t, err)
}
