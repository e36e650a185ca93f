// Package agent runs the Claude coding agent against a local working copy.
//
// The agent edits files through a small tool set and finishes by calling
// submit_result. It never touches git; committing and pushing stay with the
// caller so a failed run leaves no partial history behind.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/Helicone/temporal-integration/internal/config"
	"github.com/Helicone/temporal-integration/internal/logging"
)

// maxConversationTurns bounds a single run. A well-behaved integration
// finishes in far fewer turns; hitting the cap means the model is stuck.
const maxConversationTurns = 80

// RunInput describes one agent run against a workspace.
type RunInput struct {
	WorkspacePath string
	// Task is the integration instruction. Required on the first run;
	// resumed runs reuse the task stored in the session.
	Task string
	// Feedback carries reviewer comments when resuming after a rejection.
	Feedback string
	// SessionID resumes a prior session. Empty starts a new one.
	SessionID string
}

// RunResult is the outcome of a completed agent run.
type RunResult struct {
	SessionID      string
	ModifiedFiles  []string
	AddedFiles     []string
	Summary        string
	ChangesSummary string
	// Committed reports whether the agent committed its own changes. This
	// runner never does; the orchestrator owns the commit.
	Committed bool
}

// Runner executes a coding-agent run.
type Runner interface {
	Run(ctx context.Context, in RunInput) (*RunResult, error)
}

// ClaudeRunner drives an Anthropic model through the workspace tool set.
type ClaudeRunner struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       *logging.Logger
}

var _ Runner = (*ClaudeRunner)(nil)

// NewClaudeRunner builds a runner from coding-agent configuration.
func NewClaudeRunner(cfg config.AnthropicConfig, log *logging.Logger) *ClaudeRunner {
	return &ClaudeRunner{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey.Value())),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		log:       log.Named("agent"),
	}
}

const systemPrompt = `You are an automated coding agent that integrates the Helicone
observability proxy into existing codebases. You work on a local checkout of the
repository through the provided tools.

Rules:
- Explore the codebase first (list_files, read_file) and find where LLM API
  calls are made before editing anything.
- Route LLM API calls through the Helicone proxy (for the Anthropic API, set
  the base URL to https://anthropic.helicone.ai and add the
  Helicone-Auth header from a HELICONE_API_KEY environment variable; other
  providers follow the analogous pattern documented at docs.helicone.ai).
- Make the smallest change that achieves the integration. Do not reformat,
  rename, or restructure unrelated code.
- Preserve existing behavior when the Helicone key is not configured.
- When every edit is done, call submit_result exactly once with a summary
  suitable for a pull request description.`

// Run executes one agent run. When in.SessionID is set the prior session's
// task and round history are replayed into the prompt so feedback rounds
// build on earlier work.
func (r *ClaudeRunner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if in.WorkspacePath == "" {
		return nil, fmt.Errorf("workspace path is required")
	}

	store := NewSessionStore(in.WorkspacePath)
	var sess *Session
	var err error
	if in.SessionID != "" {
		sess, err = store.Load(in.SessionID)
		if err != nil {
			return nil, err
		}
	} else {
		if in.Task == "" {
			return nil, fmt.Errorf("task is required for a new session")
		}
		sess, err = store.Create(in.Task)
		if err != nil {
			return nil, err
		}
	}

	ws := newWorkspaceTools(in.WorkspacePath)
	tools := ws.tools()

	toolDefs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for name := range tools {
		def := tools[name].Definition
		toolDefs = append(toolDefs, anthropic.ToolUnionParam{OfTool: &def})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Tools:     toolDefs,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(buildPrompt(sess, in.Feedback)),
			},
		}},
	}

	r.log.Info(ctx, "starting agent run",
		zap.String("session_id", sess.ID),
		zap.Int("round", len(sess.Rounds)+1))

	for turn := 0; turn < maxConversationTurns; turn++ {
		message, err := r.streamMessage(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("streaming model response: %w", err)
		}

		var toolUses []anthropic.ToolUseBlock
		for _, content := range message.Content {
			if content.Type == "tool_use" {
				toolUses = append(toolUses, anthropic.ToolUseBlock{
					ID:    content.ID,
					Name:  content.Name,
					Input: content.Input,
				})
			}
		}

		if len(toolUses) == 0 {
			return nil, fmt.Errorf("agent stopped without calling submit_result")
		}

		params.Messages = append(params.Messages, message.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, toolUse := range toolUses {
			results = append(results, r.executeTool(ctx, tools, toolUse))
			if ws.submitted != nil {
				return r.finish(sess, store, ws, in.Feedback)
			}
		}

		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
	}

	return nil, fmt.Errorf("agent exceeded %d conversation turns", maxConversationTurns)
}

// streamMessage accumulates one streamed model response.
func (r *ClaudeRunner) streamMessage(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error) {
	stream := r.client.Messages.NewStreaming(ctx, params)
	var msg anthropic.Message
	for stream.Next() {
		if err := msg.Accumulate(stream.Current()); err != nil {
			return msg, fmt.Errorf("accumulating stream event: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return msg, err
	}
	return msg, nil
}

// executeTool dispatches one tool call and wraps its output as a tool_result
// block. Tool failures flow back to the model as error payloads so it can
// correct course.
func (r *ClaudeRunner) executeTool(ctx context.Context, tools map[string]tool, toolUse anthropic.ToolUseBlock) anthropic.ContentBlockParamUnion {
	r.log.Debug(ctx, "executing tool call",
		zap.String("tool", toolUse.Name),
		zap.String("id", toolUse.ID))

	var result map[string]any
	if t, ok := tools[toolUse.Name]; ok {
		var input map[string]any
		if err := json.Unmarshal(toolUse.Input, &input); err != nil {
			result = errResult(fmt.Errorf("invalid tool input: %w", err))
		} else {
			result = t.Handler(ctx, input)
		}
	} else {
		result = errResult(fmt.Errorf("unknown tool: %q", toolUse.Name))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}

	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUse.ID,
			Content: []anthropic.ToolResultBlockParamContentUnion{{
				OfText: &anthropic.TextBlockParam{Text: string(payload)},
			}},
		},
	}
}

// finish records the completed round in the session and builds the result.
func (r *ClaudeRunner) finish(sess *Session, store *SessionStore, ws *workspaceTools, feedback string) (*RunResult, error) {
	sub := ws.submitted
	sess.Rounds = append(sess.Rounds, Round{
		Feedback:      feedback,
		Summary:       sub.Summary,
		ModifiedFiles: ws.ModifiedFiles(),
		AddedFiles:    ws.AddedFiles(),
	})
	if err := store.Save(sess); err != nil {
		return nil, err
	}
	return &RunResult{
		SessionID:      sess.ID,
		ModifiedFiles:  ws.ModifiedFiles(),
		AddedFiles:     ws.AddedFiles(),
		Summary:        sub.Summary,
		ChangesSummary: sub.ChangesSummary,
	}, nil
}

// buildPrompt renders the user prompt for the next round. Prior rounds are
// replayed as context so a resumed agent knows what it already changed.
func buildPrompt(sess *Session, feedback string) string {
	var b strings.Builder

	b.WriteString(sess.Task)
	b.WriteString("\n")

	for i, round := range sess.Rounds {
		fmt.Fprintf(&b, "\n--- Previous attempt %d ---\n", i+1)
		if round.Feedback != "" {
			fmt.Fprintf(&b, "Reviewer feedback addressed: %s\n", round.Feedback)
		}
		fmt.Fprintf(&b, "Summary: %s\n", round.Summary)
		if len(round.ModifiedFiles) > 0 {
			fmt.Fprintf(&b, "Modified: %s\n", strings.Join(round.ModifiedFiles, ", "))
		}
		if len(round.AddedFiles) > 0 {
			fmt.Fprintf(&b, "Added: %s\n", strings.Join(round.AddedFiles, ", "))
		}
	}

	if feedback != "" {
		b.WriteString("\n--- Reviewer feedback ---\n")
		b.WriteString("A human reviewer rejected the previous attempt. Revise the working copy to address this feedback:\n")
		b.WriteString(feedback)
		b.WriteString("\n")
	}

	return b.String()
}
