package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/temporal"
)

func TestBranchNameIsStablePerIntegration(t *testing.T) {
	assert.Equal(t, "helicone-integration-int-123", BranchName("int-123"))
	// The branch depends on the integration id alone, never on the
	// attempt, so every retry updates the same review PR.
	assert.Equal(t, BranchName("int-123"), BranchName("int-123"))
}

func TestIntegrationInputValidate(t *testing.T) {
	valid := IntegrationInput{
		RepoURL:       "https://github.com/acme/api",
		RepoOwner:     "acme",
		RepoName:      "api",
		IntegrationID: "int-1",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*IntegrationInput)
	}{
		{"missing url", func(in *IntegrationInput) { in.RepoURL = "" }},
		{"missing owner", func(in *IntegrationInput) { in.RepoOwner = "" }},
		{"missing name", func(in *IntegrationInput) { in.RepoName = "" }},
		{"missing id", func(in *IntegrationInput) { in.IntegrationID = "" }},
		{"negative timeout", func(in *IntegrationInput) { in.ReviewTimeout = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			assert.Error(t, in.Validate())
		})
	}
}

func TestPhaseTerminal(t *testing.T) {
	assert.True(t, PhaseCompleted.Terminal())
	assert.True(t, PhaseRejected.Terminal())
	assert.True(t, PhaseFailed.Terminal())
	assert.False(t, PhaseAwaitingReview.Terminal())
	assert.False(t, PhaseIntegrating.Terminal())
}

func TestBuildReviewPRBody(t *testing.T) {
	attempt := &ChangeAttempt{
		Ordinal:        1,
		SessionID:      "sess-1",
		ModifiedFiles:  []string{"src/client.py"},
		AddedFiles:     []string{"src/helicone.py"},
		Summary:        "Routed Anthropic calls through Helicone",
		ChangesSummary: "- src/client.py: use proxy base URL",
	}

	body := buildReviewPRBody("int-123", attempt)
	assert.Contains(t, body, "Routed Anthropic calls through Helicone")
	assert.Contains(t, body, "M src/client.py")
	assert.Contains(t, body, "A src/helicone.py")
	assert.Contains(t, body, "integrationctl review approve int-123")
	assert.Contains(t, body, "integrationctl review reject int-123")
	assert.Contains(t, body, "7 days")
}

func TestBuildFinalPRBody(t *testing.T) {
	first := &ChangeAttempt{Ordinal: 1, SessionID: "sess-1", Summary: "did it"}
	body := buildFinalPRBody(first)
	assert.Contains(t, body, "did it")
	assert.NotContains(t, body, "Refined over")

	refined := &ChangeAttempt{Ordinal: 2, SessionID: "sess-1", Summary: "did it better"}
	body = buildFinalPRBody(refined)
	assert.Contains(t, body, "Refined over 2 review attempts")
}

func TestChangeCount(t *testing.T) {
	attempt := &ChangeAttempt{
		ModifiedFiles: []string{"a", "b"},
		AddedFiles:    []string{"c"},
	}
	assert.Equal(t, 3, attempt.ChangeCount())
	assert.Equal(t, 0, (&ChangeAttempt{}).ChangeCount())
}

func TestErrorMessageUnwrapsApplicationErrors(t *testing.T) {
	err := newHostAPIError("forking acme/api", errors.New("403 forbidden"))
	msg := errorMessage(err)
	assert.Contains(t, msg, "forking acme/api")

	assert.Equal(t, "plain failure", errorMessage(errors.New("plain failure")))
}

func TestErrorTypes(t *testing.T) {
	var appErr *temporal.ApplicationError

	assert.True(t, errors.As(newHostAPIError("x", nil), &appErr))
	assert.Equal(t, ErrTypeHostAPI, appErr.Type())

	assert.True(t, errors.As(newAgentError("x", nil), &appErr))
	assert.Equal(t, ErrTypeAgent, appErr.Type())

	assert.True(t, errors.As(newWorkspaceError("x", nil, true), &appErr))
	assert.Equal(t, ErrTypeWorkspace, appErr.Type())
	assert.False(t, appErr.NonRetryable())

	assert.True(t, errors.As(newWorkspaceError("x", nil, false), &appErr))
	assert.True(t, appErr.NonRetryable())
}
