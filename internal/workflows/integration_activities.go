package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/Helicone/temporal-integration/internal/agent"
	"github.com/Helicone/temporal-integration/internal/config"
	"github.com/Helicone/temporal-integration/internal/githost"
	"github.com/Helicone/temporal-integration/internal/status"
	"github.com/Helicone/temporal-integration/internal/workspace"
)

// Activities bundles the leaf dependencies the integration workflow drives.
// One instance is registered on the worker; the workflow references its
// methods through a nil pointer, so nothing here may be touched from
// workflow code.
type Activities struct {
	Gateway   *githost.Gateway
	Workspace *workspace.Manager
	Runner    agent.Runner
	Reporter  status.Reporter
	// Token is the worker's GitHub credential, used when the workflow
	// input does not carry its own.
	Token config.Secret
}

// token prefers the per-integration credential over the worker default.
func (a *Activities) token(in config.Secret) config.Secret {
	if in.IsSet() {
		return in
	}
	return a.Token
}

// ForkInput identifies the upstream repository to fork.
type ForkInput struct {
	RepoOwner string
	RepoName  string
}

// ForkRepository forks the upstream repository under the bot account and
// waits for the fork to materialize. Re-forking an already forked repository
// returns the existing fork, so retries are safe.
func (a *Activities) ForkRepository(ctx context.Context, input ForkInput) (*ForkResult, error) {
	fork, err := a.Gateway.Fork(ctx, input.RepoOwner, input.RepoName)
	if err != nil {
		return nil, newHostAPIError(fmt.Sprintf("forking %s/%s", input.RepoOwner, input.RepoName), err)
	}
	return &ForkResult{
		Owner:         fork.Owner,
		Name:          fork.Name,
		CloneURL:      fork.CloneURL,
		DefaultBranch: fork.DefaultBranch,
	}, nil
}

// CloneInput describes the fork to clone and the staging branch to prepare.
type CloneInput struct {
	CloneURL      string
	DefaultBranch string
	IntegrationID string
	Token         config.Secret
}

// CloneRepository clones the fork's default branch into a fresh workspace
// and checks out the staging branch. The branch name is derived from the
// integration id so every attempt reuses it.
func (a *Activities) CloneRepository(ctx context.Context, input CloneInput) (*WorkspaceHandle, error) {
	path, err := a.Workspace.Clone(ctx, input.CloneURL, input.DefaultBranch, a.token(input.Token))
	if err != nil {
		return nil, newWorkspaceError("cloning fork", err, true)
	}
	if err := a.Workspace.CheckoutBranch(path, BranchName(input.IntegrationID)); err != nil {
		return nil, newWorkspaceError("preparing staging branch", err, true)
	}
	return &WorkspaceHandle{Path: path}, nil
}

// AgentRunInput describes one coding-agent run.
type AgentRunInput struct {
	WorkspacePath string
	RepoOwner     string
	RepoName      string
	// Ordinal is the 1-based attempt number.
	Ordinal int
	// Feedback carries reviewer comments on attempts after the first.
	Feedback string
	// SessionID resumes the prior agent session on feedback attempts.
	SessionID string
}

// RunChangeAgent executes the coding agent against the workspace and reports
// what it touched. The agent never commits; the push activity owns that.
// The worktree status, not the agent's own claim, decides which files count
// as changed: an agent that rewrites files with identical content (or claims
// edits it never made) produced no change.
func (a *Activities) RunChangeAgent(ctx context.Context, input AgentRunInput) (*ChangeAttempt, error) {
	result, err := a.Runner.Run(ctx, agent.RunInput{
		WorkspacePath: input.WorkspacePath,
		Task:          integrationTask(input.RepoOwner, input.RepoName),
		Feedback:      input.Feedback,
		SessionID:     input.SessionID,
	})
	if err != nil {
		return nil, newAgentError("coding agent run failed", err)
	}
	modified, added, err := a.Workspace.ChangedFiles(input.WorkspacePath)
	if err != nil {
		return nil, newWorkspaceError("inspecting working tree", err, true)
	}
	return &ChangeAttempt{
		Ordinal:        input.Ordinal,
		SessionID:      result.SessionID,
		ModifiedFiles:  modified,
		AddedFiles:     added,
		Summary:        result.Summary,
		ChangesSummary: result.ChangesSummary,
		Committed:      result.Committed,
	}, nil
}

// integrationTask renders the agent instruction for one repository.
func integrationTask(owner, name string) string {
	return fmt.Sprintf(
		"Integrate the Helicone observability proxy into the repository %s/%s. "+
			"Find where the codebase calls LLM provider APIs and route those calls "+
			"through Helicone, keeping the change minimal and backwards compatible.",
		owner, name)
}

// PushInput describes one commit-and-push of the staging branch.
type PushInput struct {
	WorkspacePath string
	IntegrationID string
	Ordinal       int
	Summary       string
	Token         config.Secret
}

// PushAttempt commits the working tree and pushes the staging branch. Both
// halves tolerate re-execution: a clean tree means the commit already
// happened, and pushing an up-to-date branch succeeds.
func (a *Activities) PushAttempt(ctx context.Context, input PushInput) error {
	message := fmt.Sprintf("Add Helicone integration (attempt %d)\n\n%s", input.Ordinal, input.Summary)
	if err := a.Workspace.Commit(input.WorkspacePath, message); err != nil {
		if !errors.Is(err, workspace.ErrNoChanges) {
			return newWorkspaceError("committing changes", err, true)
		}
	}
	if err := a.Workspace.Push(ctx, input.WorkspacePath, BranchName(input.IntegrationID), a.token(input.Token)); err != nil {
		return newWorkspaceError("pushing staging branch", err, true)
	}
	return nil
}

// ReviewPRInput describes the staging pull request on the fork.
type ReviewPRInput struct {
	ForkOwner     string
	ForkName      string
	DefaultBranch string
	RepoOwner     string
	RepoName      string
	IntegrationID string
	Attempt       ChangeAttempt
}

// CreateReviewPullRequest opens the staging PR on the fork, from the staging
// branch into the fork's default branch. An already-open PR for the branch is
// returned as is.
func (a *Activities) CreateReviewPullRequest(ctx context.Context, input ReviewPRInput) (*PullRequestResult, error) {
	pr, err := a.Gateway.CreatePullRequest(ctx,
		input.ForkOwner, input.ForkName,
		BranchName(input.IntegrationID), input.DefaultBranch,
		reviewPRTitle(input.RepoOwner, input.RepoName),
		buildReviewPRBody(input.IntegrationID, &input.Attempt))
	if err != nil {
		return nil, newHostAPIError("creating review pull request", err)
	}
	return &PullRequestResult{Number: pr.Number, URL: pr.URL, State: pr.State}, nil
}

// FinalPRInput describes the upstream pull request.
type FinalPRInput struct {
	RepoOwner     string
	RepoName      string
	BaseBranch    string
	ForkOwner     string
	IntegrationID string
	Attempt       ChangeAttempt
}

// CreateFinalPullRequest opens the upstream PR from the fork's staging
// branch once a reviewer approved the staged change.
func (a *Activities) CreateFinalPullRequest(ctx context.Context, input FinalPRInput) (*PullRequestResult, error) {
	head := input.ForkOwner + ":" + BranchName(input.IntegrationID)
	pr, err := a.Gateway.CreatePullRequest(ctx,
		input.RepoOwner, input.RepoName,
		head, input.BaseBranch,
		reviewPRTitle(input.RepoOwner, input.RepoName),
		buildFinalPRBody(&input.Attempt))
	if err != nil {
		return nil, newHostAPIError("creating upstream pull request", err)
	}
	return &PullRequestResult{Number: pr.Number, URL: pr.URL, State: pr.State}, nil
}

// ReportStatus delivers one lifecycle event to the configured reporter.
func (a *Activities) ReportStatus(ctx context.Context, event StatusEvent) error {
	return a.Reporter.Report(ctx, status.Event{
		IntegrationID: event.IntegrationID,
		Status:        string(event.Phase),
		Message:       event.Message,
		StagingURL:    event.StagingURL,
		PRURL:         event.PRURL,
	})
}

// CleanupWorkspace removes the local clone and its agent session state once
// the instance reaches a terminal phase.
func (a *Activities) CleanupWorkspace(_ context.Context, handle WorkspaceHandle) error {
	if handle.Path == "" {
		return nil
	}
	if err := agent.RemoveSessions(handle.Path); err != nil {
		return err
	}
	return a.Workspace.Remove(handle.Path)
}
