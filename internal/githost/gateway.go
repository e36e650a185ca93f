// Package githost is the source-hosting gateway: fork and pull-request
// operations against the GitHub API. It is stateless request/response; the
// orchestrator owns retry policy above this layer.
package githost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/Helicone/temporal-integration/internal/config"
)

// APIError reports a rejected or failed hosting API call.
type APIError struct {
	Op         string // "fork", "create_pull_request"
	StatusCode int    // HTTP status when known, 0 otherwise
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("github %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("github %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Fork describes a created fork.
type Fork struct {
	Owner         string
	Name          string
	CloneURL      string
	DefaultBranch string
}

// PullRequest describes a created pull request.
type PullRequest struct {
	Number int
	URL    string
	State  string
}

// Gateway wraps an authenticated GitHub client.
type Gateway struct {
	client *github.Client

	// forkPollInterval controls how often Fork checks for the async fork
	// to materialize. Tests shorten it.
	forkPollInterval time.Duration
	forkPollAttempts int
}

// NewGateway creates a gateway with token authentication.
func NewGateway(ctx context.Context, token config.Secret) (*Gateway, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	tc := oauth2.NewClient(ctx, ts)
	return NewGatewayWithClient(github.NewClient(tc)), nil
}

// NewGatewayWithClient creates a gateway around an existing client. Tests use
// this with a client pointed at a local HTTP server.
func NewGatewayWithClient(client *github.Client) *Gateway {
	return &Gateway{
		client:           client,
		forkPollInterval: 3 * time.Second,
		forkPollAttempts: 10,
	}
}

// Fork creates a fork of owner/repo under the authenticated account and waits
// for it to materialize. GitHub forks asynchronously (202 Accepted), so the
// creation response is only a promise; the fork is polled until it exists.
func (g *Gateway) Fork(ctx context.Context, owner, repo string) (*Fork, error) {
	if owner == "" || repo == "" {
		return nil, &APIError{Op: "fork", Err: errors.New("owner and repo are required")}
	}

	created, resp, err := g.client.Repositories.CreateFork(ctx, owner, repo, nil)
	if err != nil {
		var accepted *github.AcceptedError
		if !errors.As(err, &accepted) {
			return nil, &APIError{Op: "fork", StatusCode: statusCode(resp), Err: err}
		}
	}
	if created == nil || created.GetOwner().GetLogin() == "" {
		return nil, &APIError{Op: "fork", StatusCode: statusCode(resp), Err: errors.New("fork response missing repository")}
	}

	forkOwner := created.GetOwner().GetLogin()
	forkName := created.GetName()

	// The 202 body can omit fields that are only set once the fork is
	// ready; poll the fork itself for the authoritative values.
	var ready *github.Repository
	for i := 0; i < g.forkPollAttempts; i++ {
		ready, _, err = g.client.Repositories.Get(ctx, forkOwner, forkName)
		if err == nil && ready.GetDefaultBranch() != "" {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &APIError{Op: "fork", Err: ctx.Err()}
		case <-time.After(g.forkPollInterval):
		}
	}
	if err != nil {
		return nil, &APIError{Op: "fork", Err: fmt.Errorf("fork did not materialize: %w", err)}
	}

	return &Fork{
		Owner:         forkOwner,
		Name:          forkName,
		CloneURL:      ready.GetCloneURL(),
		DefaultBranch: ready.GetDefaultBranch(),
	}, nil
}

// CreatePullRequest opens a pull request. head and base must name existing
// branches ("branch" or "owner:branch" for cross-repository heads). If an
// open PR for the same head/base already exists — the workflow may re-execute
// this step after a crash between the API call and the checkpoint — the
// existing PR is returned instead of an error.
func (g *Gateway) CreatePullRequest(ctx context.Context, owner, repo, head, base, title, body string) (*PullRequest, error) {
	if owner == "" || repo == "" || head == "" || base == "" {
		return nil, &APIError{Op: "create_pull_request", Err: errors.New("owner, repo, head and base are required")}
	}

	pr, resp, err := g.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(head),
		Base:  github.String(base),
		Body:  github.String(body),
	})
	if err != nil {
		if existing := g.findExistingPR(ctx, owner, repo, head, base); existing != nil {
			return existing, nil
		}
		return nil, &APIError{Op: "create_pull_request", StatusCode: statusCode(resp), Err: err}
	}

	return &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		State:  pr.GetState(),
	}, nil
}

// findExistingPR looks for an open PR with the given head and base. Returns
// nil when none exists or the lookup itself fails.
func (g *Gateway) findExistingPR(ctx context.Context, owner, repo, head, base string) *PullRequest {
	// The list filter wants "owner:branch"; same-repo heads need the
	// repo owner prefixed.
	filterHead := head
	if !strings.Contains(filterHead, ":") {
		filterHead = owner + ":" + head
	}

	prs, _, err := g.client.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State: "open",
		Head:  filterHead,
		Base:  base,
	})
	if err != nil || len(prs) == 0 {
		return nil
	}

	pr := prs[0]
	return &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		State:  pr.GetState(),
	}
}

func statusCode(resp *github.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
