package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOriginRepo creates a local repository with one commit on main, usable as
// a clone/push remote through its filesystem path.
func newOriginRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName("main"),
		},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# widgets\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client.js"), []byte("module.exports = {};\n"), 0644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@example.com"},
	})
	require.NoError(t, err)

	return dir
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), "integration-bot")
	require.NoError(t, err)
	return m
}

func TestNewManager(t *testing.T) {
	_, err := NewManager("", "  ")
	require.Error(t, err)
}

func TestCloneCheckoutCommitPush(t *testing.T) {
	ctx := context.Background()
	origin := newOriginRepo(t)
	m := newTestManager(t)

	path, err := m.Clone(ctx, origin, "main", "")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(path, "README.md"))

	// fresh clone is clean
	modified, added, err := m.ChangedFiles(path)
	require.NoError(t, err)
	assert.Empty(t, modified)
	assert.Empty(t, added)

	// commit on a clean tree is the expected terminal condition
	err = m.Commit(path, "nothing")
	require.ErrorIs(t, err, ErrNoChanges)

	branch := "helicone-integration-abc123"
	require.NoError(t, m.CheckoutBranch(path, branch))
	// re-checkout of the same branch is a no-op
	require.NoError(t, m.CheckoutBranch(path, branch))

	// mutate the tree the way the agent would
	require.NoError(t, os.WriteFile(filepath.Join(path, "client.js"), []byte("const helicone = require('helicone');\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "helicone.config.js"), []byte("module.exports = { apiKey: process.env.HELICONE_API_KEY };\n"), 0644))

	modified, added, err = m.ChangedFiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"client.js"}, modified)
	assert.Equal(t, []string{"helicone.config.js"}, added)

	require.NoError(t, m.Commit(path, "Add Helicone integration"))

	require.NoError(t, m.Push(ctx, path, branch, ""))
	// pushing again with nothing new is success (safe re-execution)
	require.NoError(t, m.Push(ctx, path, branch, ""))

	// the branch must exist on the origin now
	originRepo, err := git.PlainOpen(origin)
	require.NoError(t, err)
	ref, err := originRepo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	assert.False(t, ref.Hash().IsZero())
}

func TestCloneFailures(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Clone(ctx, "", "main", "")
	var wsErr *Error
	require.ErrorAs(t, err, &wsErr)
	assert.Equal(t, "clone", wsErr.Op)

	_, err = m.Clone(ctx, filepath.Join(t.TempDir(), "missing"), "main", "")
	require.ErrorAs(t, err, &wsErr)
}

func TestCheckoutMissingRepo(t *testing.T) {
	m := newTestManager(t)
	err := m.CheckoutBranch(t.TempDir(), "branch")
	var wsErr *Error
	require.ErrorAs(t, err, &wsErr)
	assert.Equal(t, "checkout", wsErr.Op)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	origin := newOriginRepo(t)
	m := newTestManager(t)

	path, err := m.Clone(ctx, origin, "main", "")
	require.NoError(t, err)

	// refuses paths it did not create
	require.Error(t, m.Remove("/tmp/some-unrelated-dir"))
	require.Error(t, m.Remove(""))

	require.NoError(t, m.Remove(path))
	assert.NoDirExists(t, path)
}
