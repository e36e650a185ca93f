// Package workspace manages local working copies of forked repositories.
// Each integration instance owns exactly one workspace; paths are never
// shared across instances.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/Helicone/temporal-integration/internal/config"
)

// ErrNoChanges reports a commit attempted on a clean working tree. It is a
// normal-but-terminal outcome, not a transient fault.
var ErrNoChanges = errors.New("no changes to commit")

// Error reports a failed workspace operation.
type Error struct {
	Op  string // "clone", "checkout", "commit", "push", "status"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workspace %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager creates and mutates working copies.
type Manager struct {
	baseDir  string // clone parent dir; empty means os.TempDir
	identity string // commit author
}

const cloneDirPrefix = "helicone-integration-"

// NewManager constructs a Manager. identity is recorded as the commit author
// name and, when it lacks a domain, suffixed with @helicone.ai for the email.
func NewManager(baseDir, identity string) (*Manager, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}
	return &Manager{baseDir: baseDir, identity: identity}, nil
}

// Clone clones cloneURL's branch into a fresh exclusive directory and returns
// its path. The token may be unset for unauthenticated (or local) remotes.
func (m *Manager) Clone(ctx context.Context, cloneURL, branch string, token config.Secret) (string, error) {
	if cloneURL == "" || branch == "" {
		return "", &Error{Op: "clone", Err: errors.New("clone URL and branch are required")}
	}

	dir, err := os.MkdirTemp(m.baseDir, cloneDirPrefix)
	if err != nil {
		return "", &Error{Op: "clone", Err: fmt.Errorf("creating workspace dir: %w", err)}
	}

	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           cloneURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Auth:          m.auth(token),
	})
	if err != nil {
		os.RemoveAll(dir)
		return "", &Error{Op: "clone", Err: fmt.Errorf("cloning %s: %w", cloneURL, err)}
	}

	return dir, nil
}

// CheckoutBranch checks out the named branch, creating it at HEAD when it
// does not exist yet. Re-running with the same branch is a no-op checkout, so
// repeated attempts land on the same branch.
func (m *Manager) CheckoutBranch(path, branch string) error {
	if branch == "" {
		return &Error{Op: "checkout", Err: errors.New("branch name cannot be empty")}
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return &Error{Op: "checkout", Err: fmt.Errorf("opening repo: %w", err)}
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(refName, true); err != nil {
		head, err := repo.Head()
		if err != nil {
			return &Error{Op: "checkout", Err: fmt.Errorf("resolving HEAD: %w", err)}
		}
		if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, head.Hash())); err != nil {
			return &Error{Op: "checkout", Err: fmt.Errorf("setting branch reference: %w", err)}
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return &Error{Op: "checkout", Err: fmt.Errorf("getting worktree: %w", err)}
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		return &Error{Op: "checkout", Err: fmt.Errorf("checking out %s: %w", branch, err)}
	}

	return nil
}

// Commit stages everything and commits with the manager's identity. A clean
// tree returns ErrNoChanges (wrapped).
func (m *Manager) Commit(path, message string) error {
	if message == "" {
		return &Error{Op: "commit", Err: errors.New("commit message cannot be empty")}
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return &Error{Op: "commit", Err: fmt.Errorf("opening repo: %w", err)}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return &Error{Op: "commit", Err: fmt.Errorf("getting worktree: %w", err)}
	}

	st, err := worktree.Status()
	if err != nil {
		return &Error{Op: "commit", Err: fmt.Errorf("getting status: %w", err)}
	}
	if st.IsClean() {
		return &Error{Op: "commit", Err: ErrNoChanges}
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return &Error{Op: "commit", Err: fmt.Errorf("staging changes: %w", err)}
	}

	email := m.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@helicone.ai", email)
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.identity,
			Email: email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return &Error{Op: "commit", Err: fmt.Errorf("committing: %w", err)}
	}

	return nil
}

// Push pushes the branch to origin. Already-up-to-date is success, so the
// step is safe to re-execute after a crash.
func (m *Manager) Push(ctx context.Context, path, branch string, token config.Secret) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return &Error{Op: "push", Err: fmt.Errorf("opening repo: %w", err)}
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       m.auth(token),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &Error{Op: "push", Err: fmt.Errorf("pushing %s: %w", branch, err)}
	}

	return nil
}

// ChangedFiles inspects the working tree and returns modified and added
// paths, sorted.
func (m *Manager) ChangedFiles(path string) (modified, added []string, err error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, nil, &Error{Op: "status", Err: fmt.Errorf("opening repo: %w", err)}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, nil, &Error{Op: "status", Err: fmt.Errorf("getting worktree: %w", err)}
	}

	st, err := worktree.Status()
	if err != nil {
		return nil, nil, &Error{Op: "status", Err: fmt.Errorf("getting status: %w", err)}
	}

	for file, fs := range st {
		switch {
		case fs.Worktree == git.Untracked || fs.Staging == git.Added:
			added = append(added, file)
		case fs.Worktree == git.Modified || fs.Staging == git.Modified:
			modified = append(modified, file)
		}
	}
	sort.Strings(modified)
	sort.Strings(added)

	return modified, added, nil
}

// Remove deletes a workspace directory.
func (m *Manager) Remove(path string) error {
	if path == "" || !strings.Contains(path, cloneDirPrefix) {
		return &Error{Op: "remove", Err: fmt.Errorf("refusing to remove %q", path)}
	}
	return os.RemoveAll(path)
}

func (m *Manager) auth(token config.Secret) *githttp.BasicAuth {
	if !token.IsSet() {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.Value(),
	}
}
