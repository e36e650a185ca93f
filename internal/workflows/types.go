// Package workflows provides Temporal workflow definitions for Helicone
// integration automation.
//
// This file contains the shared types used by the integration workflow and
// its activities.
package workflows

import (
	"fmt"
	"strings"
	"time"

	"github.com/Helicone/temporal-integration/internal/config"
)

// SignalReviewDecision is the signal channel carrying reviewer decisions.
const SignalReviewDecision = "review-decision"

// QueryStatus is the query name returning the instance's current status.
const QueryStatus = "status"

// DefaultReviewTimeout bounds the wait for a human review decision.
const DefaultReviewTimeout = 7 * 24 * time.Hour

// MaxAttempts bounds the feedback loop. A decision with feedback delivered at
// this ordinal rejects the integration instead of running the agent again.
const MaxAttempts = 3

// Phase is a lifecycle phase of an integration instance.
type Phase string

const (
	PhaseForking          Phase = "forking"
	PhaseCloning          Phase = "cloning"
	PhaseIntegrating      Phase = "integrating"
	PhasePushing          Phase = "pushing"
	PhaseCreatingReviewPR Phase = "creating_review_pr"
	PhaseAwaitingReview   Phase = "awaiting_review"
	PhaseApplyingFeedback Phase = "applying_feedback"
	PhaseCreatingPR       Phase = "creating_pr"
	PhaseCompleted        Phase = "completed"
	PhaseRejected         Phase = "rejected"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether the phase accepts no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseRejected || p == PhaseFailed
}

// IntegrationInput starts one integration instance. The IntegrationID doubles
// as the instance's durable key (the Temporal workflow id).
type IntegrationInput struct {
	RepoURL       string        // Source repository URL
	RepoOwner     string        // Source repository owner
	RepoName      string        // Source repository name
	IntegrationID string        // Caller-supplied unique identifier
	GitHubToken   config.Secret // GitHub API token for activities
	ReviewTimeout time.Duration // Zero means DefaultReviewTimeout
}

// Validate checks that all required fields are set.
func (in *IntegrationInput) Validate() error {
	if in.RepoURL == "" {
		return fmt.Errorf("RepoURL is required")
	}
	if in.RepoOwner == "" {
		return fmt.Errorf("RepoOwner is required")
	}
	if in.RepoName == "" {
		return fmt.Errorf("RepoName is required")
	}
	if in.IntegrationID == "" {
		return fmt.Errorf("IntegrationID is required")
	}
	if in.ReviewTimeout < 0 {
		return fmt.Errorf("ReviewTimeout cannot be negative")
	}
	return nil
}

// ForkResult is produced once per instance by the fork activity and never
// mutated afterwards.
type ForkResult struct {
	Owner         string // Fork owner (the bot account or org)
	Name          string // Fork repository name
	CloneURL      string // HTTPS clone URL of the fork
	DefaultBranch string // Default branch, mirrors the upstream default
}

// WorkspaceHandle locates the instance's local working copy. It is owned
// exclusively by one instance and never shared.
type WorkspaceHandle struct {
	Path string
}

// ChangeAttempt captures one iteration of the edit/review loop. Each attempt
// supersedes the previous one; only the latest session id is kept, while the
// branch stays stable so review history accumulates on a single pull request.
type ChangeAttempt struct {
	Ordinal        int      // 1-based attempt number
	SessionID      string   // Agent continuation token
	ModifiedFiles  []string // Paths the agent modified
	AddedFiles     []string // Paths the agent created
	Summary        string   // Human-readable summary of the change
	ChangesSummary string   // Human-readable per-file changes listing
	Committed      bool     // Whether the agent performed the commit itself
}

// ChangeCount returns the total number of touched files.
func (a *ChangeAttempt) ChangeCount() int {
	return len(a.ModifiedFiles) + len(a.AddedFiles)
}

// ReviewDecision is the external review signal payload. It is consumed at
// most once per loop iteration; stale deliveries are discarded.
type ReviewDecision struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// StatusEvent is emitted to the status reporter on every phase transition.
type StatusEvent struct {
	IntegrationID string `json:"integrationId"`
	Phase         Phase  `json:"status"`
	Message       string `json:"message"`
	StagingURL    string `json:"stagingUrl,omitempty"`
	PRURL         string `json:"prUrl,omitempty"`
}

// IntegrationResult is the workflow's final state.
type IntegrationResult struct {
	Phase       Phase  // Terminal phase reached
	Message     string // Human-readable outcome
	Attempts    int    // Number of agent attempts executed
	ReviewPRURL string // Staging PR on the fork, if one was opened
	FinalPRURL  string // PR against the upstream repository, if opened
}

// BranchName derives the staging branch from the integration id alone, so
// every attempt pushes to the same branch and the same review PR.
func BranchName(integrationID string) string {
	return "helicone-integration-" + integrationID
}

// PullRequestResult is the gateway's create-PR output.
type PullRequestResult struct {
	Number int
	URL    string
	State  string
}

// reviewPRTitle builds the staging PR title.
func reviewPRTitle(repoOwner, repoName string) string {
	return fmt.Sprintf("Add Helicone integration to %s/%s", repoOwner, repoName)
}

// buildReviewPRBody renders the reviewer-facing staging PR description. It
// must let a reviewer unfamiliar with the system act without external
// documentation, so the approve/reject instructions carry the integration id.
func buildReviewPRBody(integrationID string, attempt *ChangeAttempt) string {
	var b strings.Builder

	b.WriteString("## Helicone Integration (staging review)\n\n")
	b.WriteString("An automated agent added the Helicone observability proxy to this fork. ")
	b.WriteString("Nothing touches the upstream repository until this change is approved.\n\n")

	b.WriteString("### Summary\n")
	b.WriteString(attempt.Summary)
	b.WriteString("\n\n")

	if attempt.ChangesSummary != "" {
		b.WriteString("### Changes\n")
		b.WriteString(attempt.ChangesSummary)
		b.WriteString("\n\n")
	}

	b.WriteString("### Files\n```\n")
	for _, f := range attempt.ModifiedFiles {
		fmt.Fprintf(&b, "M %s\n", f)
	}
	for _, f := range attempt.AddedFiles {
		fmt.Fprintf(&b, "A %s\n", f)
	}
	b.WriteString("```\n\n")

	b.WriteString("### How to review\n")
	fmt.Fprintf(&b, "Integration id: `%s`\n\n", integrationID)
	b.WriteString("Approve and open the upstream PR:\n")
	fmt.Fprintf(&b, "```\nintegrationctl review approve %s\n```\n", integrationID)
	b.WriteString("Request changes (the agent retries with your feedback, max 3 attempts):\n")
	fmt.Fprintf(&b, "```\nintegrationctl review reject %s --feedback \"describe what to change\"\n```\n\n", integrationID)
	b.WriteString("No decision within 7 days fails the integration.\n")

	return b.String()
}

// buildFinalPRBody renders the upstream PR description. It references the
// attempt count when the review loop ran more than once.
func buildFinalPRBody(attempt *ChangeAttempt) string {
	var b strings.Builder

	b.WriteString("## Add Helicone observability\n\n")
	b.WriteString("This PR routes LLM calls through the Helicone proxy for request logging, ")
	b.WriteString("caching, and cost tracking. The change was prepared and human-reviewed on a ")
	b.WriteString("staging fork before being proposed here.\n\n")

	b.WriteString("### Summary\n")
	b.WriteString(attempt.Summary)
	b.WriteString("\n\n")

	if attempt.Ordinal > 1 {
		fmt.Fprintf(&b, "Refined over %d review attempts before approval.\n\n", attempt.Ordinal)
	}

	fmt.Fprintf(&b, "<sub>agent session `%s`</sub>\n", attempt.SessionID)

	return b.String()
}
