package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// a lets the workflow reference activity methods without holding a real
// Activities value. Only the method identity is used for dispatch.
var a *Activities

// IntegrationWorkflow drives one Helicone integration end to end:
//
//  1. Fork the upstream repository under the bot account
//  2. Clone the fork and prepare the staging branch
//  3. Run the coding agent and push the result
//  4. Open a staging PR on the fork and wait for a human decision
//  5. On feedback, rerun the agent on the same branch (at most MaxAttempts)
//  6. On approval, open the final PR against the upstream repository
//
// The upstream repository is never touched before step 6. Rejection without
// feedback, exhausting the attempt budget, and the review deadline elapsing
// are all terminal.
func IntegrationWorkflow(ctx workflow.Context, input IntegrationInput) (*IntegrationResult, error) {
	logger := workflow.GetLogger(ctx)

	if err := input.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid input", "InvalidInput", err)
	}

	reviewTimeout := input.ReviewTimeout
	if reviewTimeout == 0 {
		reviewTimeout = DefaultReviewTimeout
	}

	state := &IntegrationResult{Phase: PhaseForking}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*IntegrationResult, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumInterval: 5 * time.Minute,
			MaximumAttempts: 3,
		},
	}
	actx := workflow.WithActivityOptions(ctx, ao)

	// The agent conversation is the long pole; its own retry budget is
	// smaller because each run is expensive.
	agentCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    0,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumInterval: 5 * time.Minute,
			MaximumAttempts: 2,
		},
	})

	var handle WorkspaceHandle
	defer func() {
		if handle.Path == "" {
			return
		}
		// Cleanup must run even when the workflow was cancelled.
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		cleanupCtx := workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
		})
		if err := workflow.ExecuteActivity(cleanupCtx, a.CleanupWorkspace, handle).Get(dctx, nil); err != nil {
			logger.Warn("workspace cleanup failed", "error", err)
		}
	}()

	fail := func(phase Phase, msg string, err error) (*IntegrationResult, error) {
		if ctx.Err() != nil {
			return failDisconnected(ctx, input.IntegrationID, state, msg, err)
		}
		state.Phase = phase
		state.Message = msg
		reportStatus(ctx, input.IntegrationID, state)
		if err != nil {
			logger.Error("integration failed", "phase", phase, "error", err)
		}
		return state, err
	}

	// Step 1: fork.
	setPhase(ctx, input.IntegrationID, state, PhaseForking,
		fmt.Sprintf("forking %s/%s", input.RepoOwner, input.RepoName))

	var fork ForkResult
	if err := workflow.ExecuteActivity(actx, a.ForkRepository, ForkInput{
		RepoOwner: input.RepoOwner,
		RepoName:  input.RepoName,
	}).Get(ctx, &fork); err != nil {
		return fail(PhaseFailed, "forking repository: "+errorMessage(err), err)
	}

	// Step 2: clone and prepare the staging branch.
	setPhase(ctx, input.IntegrationID, state, PhaseCloning,
		fmt.Sprintf("cloning %s/%s", fork.Owner, fork.Name))

	if err := workflow.ExecuteActivity(actx, a.CloneRepository, CloneInput{
		CloneURL:      fork.CloneURL,
		DefaultBranch: fork.DefaultBranch,
		IntegrationID: input.IntegrationID,
		Token:         input.GitHubToken,
	}).Get(ctx, &handle); err != nil {
		return fail(PhaseFailed, "cloning fork: "+errorMessage(err), err)
	}

	decisions := workflow.GetSignalChannel(ctx, SignalReviewDecision)

	var attempt ChangeAttempt
	feedback := ""
	sessionID := ""

	for ordinal := 1; ; ordinal++ {
		state.Attempts = ordinal

		// Step 3: run the agent. The first run starts a session;
		// feedback runs resume it.
		if ordinal == 1 {
			setPhase(ctx, input.IntegrationID, state, PhaseIntegrating,
				"running coding agent")
		} else {
			setPhase(ctx, input.IntegrationID, state, PhaseApplyingFeedback,
				fmt.Sprintf("applying reviewer feedback (attempt %d of %d)", ordinal, MaxAttempts))
		}

		if err := workflow.ExecuteActivity(agentCtx, a.RunChangeAgent, AgentRunInput{
			WorkspacePath: handle.Path,
			RepoOwner:     input.RepoOwner,
			RepoName:      input.RepoName,
			Ordinal:       ordinal,
			Feedback:      feedback,
			SessionID:     sessionID,
		}).Get(ctx, &attempt); err != nil {
			return fail(PhaseFailed, "coding agent: "+errorMessage(err), err)
		}
		sessionID = attempt.SessionID

		if attempt.ChangeCount() == 0 {
			if ordinal == 1 {
				// Nothing to integrate; the repository may already route
				// through Helicone.
				state.Phase = PhaseCompleted
				state.Message = "no changes required: " + attempt.Summary
				reportStatus(ctx, input.IntegrationID, state)
				return state, nil
			}
			// A feedback run that changes nothing can never satisfy the
			// reviewer; waiting on another decision would only stall.
			return fail(PhaseFailed, "failed to apply feedback", nil)
		}

		// Step 4: commit and push the staging branch in place.
		setPhase(ctx, input.IntegrationID, state, PhasePushing,
			fmt.Sprintf("pushing attempt %d to %s", ordinal, BranchName(input.IntegrationID)))

		if err := workflow.ExecuteActivity(actx, a.PushAttempt, PushInput{
			WorkspacePath: handle.Path,
			IntegrationID: input.IntegrationID,
			Ordinal:       ordinal,
			Summary:       attempt.Summary,
			Token:         input.GitHubToken,
		}).Get(ctx, nil); err != nil {
			return fail(PhaseFailed, "pushing changes: "+errorMessage(err), err)
		}

		// Step 5: the staging PR is opened once; later attempts update
		// it implicitly because the branch is stable.
		if ordinal == 1 {
			setPhase(ctx, input.IntegrationID, state, PhaseCreatingReviewPR,
				"opening staging pull request")

			var reviewPR PullRequestResult
			if err := workflow.ExecuteActivity(actx, a.CreateReviewPullRequest, ReviewPRInput{
				ForkOwner:     fork.Owner,
				ForkName:      fork.Name,
				DefaultBranch: fork.DefaultBranch,
				RepoOwner:     input.RepoOwner,
				RepoName:      input.RepoName,
				IntegrationID: input.IntegrationID,
				Attempt:       attempt,
			}).Get(ctx, &reviewPR); err != nil {
				return fail(PhaseFailed, "opening review pull request: "+errorMessage(err), err)
			}
			state.ReviewPRURL = reviewPR.URL
		}

		// Step 6: wait for the human decision.
		setPhase(ctx, input.IntegrationID, state, PhaseAwaitingReview,
			fmt.Sprintf("waiting for review decision (attempt %d of %d)", ordinal, MaxAttempts))

		decision, received := awaitReviewDecision(ctx, decisions, reviewTimeout)
		if err := ctx.Err(); err != nil {
			return failDisconnected(ctx, input.IntegrationID, state, "workflow cancelled", err)
		}
		if !received {
			return fail(PhaseFailed,
				fmt.Sprintf("review timed out after %s", reviewTimeout), nil)
		}

		if decision.Approved {
			break
		}

		logger.Info("integration attempt rejected",
			"attempt", ordinal, "has_feedback", decision.Feedback != "")

		if decision.Feedback == "" {
			state.Phase = PhaseRejected
			state.Message = "rejected without feedback"
			reportStatus(ctx, input.IntegrationID, state)
			return state, nil
		}
		if ordinal >= MaxAttempts {
			state.Phase = PhaseRejected
			state.Message = fmt.Sprintf("maximum feedback attempts reached (%d)", MaxAttempts)
			reportStatus(ctx, input.IntegrationID, state)
			return state, nil
		}
		feedback = decision.Feedback
	}

	// Step 7: approved; open the PR against the upstream repository.
	setPhase(ctx, input.IntegrationID, state, PhaseCreatingPR,
		"opening upstream pull request")

	var finalPR PullRequestResult
	if err := workflow.ExecuteActivity(actx, a.CreateFinalPullRequest, FinalPRInput{
		RepoOwner:     input.RepoOwner,
		RepoName:      input.RepoName,
		BaseBranch:    fork.DefaultBranch,
		ForkOwner:     fork.Owner,
		IntegrationID: input.IntegrationID,
		Attempt:       attempt,
	}).Get(ctx, &finalPR); err != nil {
		return fail(PhaseFailed, "opening upstream pull request: "+errorMessage(err), err)
	}

	state.Phase = PhaseCompleted
	state.Message = "integration approved and proposed upstream"
	state.FinalPRURL = finalPR.URL
	reportStatus(ctx, input.IntegrationID, state)

	logger.Info("integration completed",
		"attempts", state.Attempts, "final_pr", finalPR.URL)
	return state, nil
}

// awaitReviewDecision blocks until a reviewer decision arrives or the
// deadline elapses. Decisions delivered outside the waiting window are
// discarded first, and when several queued up only the newest counts.
func awaitReviewDecision(ctx workflow.Context, ch workflow.ReceiveChannel, timeout time.Duration) (ReviewDecision, bool) {
	var stale ReviewDecision
	for ch.ReceiveAsync(&stale) {
	}

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	timer := workflow.NewTimer(timerCtx, timeout)

	var decision ReviewDecision
	received := false

	selector := workflow.NewSelector(ctx)
	selector.AddReceive(ch, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, &decision)
		received = true
	})
	selector.AddFuture(timer, func(workflow.Future) {})
	selector.Select(ctx)

	if !received {
		return ReviewDecision{}, false
	}

	var newer ReviewDecision
	for ch.ReceiveAsync(&newer) {
		decision = newer
	}
	return decision, true
}

// setPhase records a transition and publishes it.
func setPhase(ctx workflow.Context, integrationID string, state *IntegrationResult, phase Phase, msg string) {
	state.Phase = phase
	state.Message = msg
	reportStatus(ctx, integrationID, state)
}

// reportStatus publishes the current state best effort. A reporter outage
// never fails the integration.
func reportStatus(ctx workflow.Context, integrationID string, state *IntegrationResult) {
	rctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	err := workflow.ExecuteActivity(rctx, a.ReportStatus, StatusEvent{
		IntegrationID: integrationID,
		Phase:         state.Phase,
		Message:       state.Message,
		StagingURL:    state.ReviewPRURL,
		PRURL:         state.FinalPRURL,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("status report failed",
			"phase", state.Phase, "error", err)
	}
}

// failDisconnected reports a terminal failure after the workflow context was
// cancelled, using a disconnected context so the report still goes out.
func failDisconnected(ctx workflow.Context, integrationID string, state *IntegrationResult, msg string, err error) (*IntegrationResult, error) {
	state.Phase = PhaseFailed
	state.Message = msg
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	reportStatus(dctx, integrationID, state)
	return state, err
}
