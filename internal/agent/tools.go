package agent

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// submission is the payload of the submit_result tool. Receiving it ends the
// conversation loop.
type submission struct {
	Summary        string
	ChangesSummary string
}

// workspaceTools exposes the working copy to the model. All paths are
// interpreted relative to the workspace root and may not escape it. The .git
// directory is invisible to the model.
type workspaceTools struct {
	root string

	modified map[string]bool
	added    map[string]bool

	submitted *submission
}

func newWorkspaceTools(root string) *workspaceTools {
	return &workspaceTools{
		root:     root,
		modified: make(map[string]bool),
		added:    make(map[string]bool),
	}
}

// resolve maps a model-supplied path onto the workspace, rejecting anything
// that would land outside the root or inside .git.
func (w *workspaceTools) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be relative: %q", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %q", path)
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git"+string(filepath.Separator)) {
		return "", fmt.Errorf("path not accessible: %q", path)
	}
	return filepath.Join(w.root, clean), nil
}

func (w *workspaceTools) listFiles(_ context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing workspace: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (w *workspaceTools) readFile(_ context.Context, path string) (string, error) {
	full, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (w *workspaceTools) writeFile(_ context.Context, path, content string) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(full)
	existed := statErr == nil

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent dir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	rel := filepath.ToSlash(filepath.Clean(path))
	if w.added[rel] {
		return nil
	}
	if existed {
		w.modified[rel] = true
	} else {
		w.added[rel] = true
	}
	return nil
}

// ModifiedFiles returns sorted paths of pre-existing files the model rewrote.
func (w *workspaceTools) ModifiedFiles() []string { return sortedKeys(w.modified) }

// AddedFiles returns sorted paths of files the model created.
func (w *workspaceTools) AddedFiles() []string { return sortedKeys(w.added) }

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toolHandler executes one tool call. The returned map becomes the tool
// result block; errors are reported to the model inside the map rather than
// aborting the conversation.
type toolHandler func(ctx context.Context, input map[string]any) map[string]any

type tool struct {
	Definition anthropic.ToolParam
	Handler    toolHandler
}

func stringParam(input map[string]any, name string) (string, bool) {
	v, ok := input[name].(string)
	return v, ok
}

func errResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// tools builds the tool set for one run. Handlers mutate the receiver's
// change tracking and submission state.
func (w *workspaceTools) tools() map[string]tool {
	return map[string]tool{
		"list_files": {
			Definition: anthropic.ToolParam{
				Name:        "list_files",
				Description: anthropic.String("List every file in the repository working copy."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       "object",
					Properties: map[string]any{},
				},
			},
			Handler: func(ctx context.Context, _ map[string]any) map[string]any {
				files, err := w.listFiles(ctx)
				if err != nil {
					return errResult(err)
				}
				return map[string]any{"files": files, "count": len(files)}
			},
		},
		"read_file": {
			Definition: anthropic.ToolParam{
				Name:        "read_file",
				Description: anthropic.String("Read the complete content of a file from the working copy."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "Path of the file to read, relative to the repository root",
						},
					},
					Required: []string{"path"},
				},
			},
			Handler: func(ctx context.Context, input map[string]any) map[string]any {
				path, ok := stringParam(input, "path")
				if !ok {
					return errResult(fmt.Errorf("missing path parameter"))
				}
				content, err := w.readFile(ctx, path)
				if err != nil {
					return errResult(err)
				}
				return map[string]any{"path": path, "content": content, "size": len(content)}
			},
		},
		"write_file": {
			Definition: anthropic.ToolParam{
				Name:        "write_file",
				Description: anthropic.String("Create or overwrite a file in the working copy."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "Path of the file to write, relative to the repository root",
						},
						"content": map[string]any{
							"type":        "string",
							"description": "The complete new content of the file",
						},
					},
					Required: []string{"path", "content"},
				},
			},
			Handler: func(ctx context.Context, input map[string]any) map[string]any {
				path, ok := stringParam(input, "path")
				if !ok {
					return errResult(fmt.Errorf("missing path parameter"))
				}
				content, ok := stringParam(input, "content")
				if !ok {
					return errResult(fmt.Errorf("missing content parameter"))
				}
				if err := w.writeFile(ctx, path, content); err != nil {
					return errResult(err)
				}
				return map[string]any{"path": path, "written": len(content)}
			},
		},
		"submit_result": {
			Definition: anthropic.ToolParam{
				Name:        "submit_result",
				Description: anthropic.String("Submit the finished integration. Call this exactly once, after all file edits are done."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type: "object",
					Properties: map[string]any{
						"summary": map[string]any{
							"type":        "string",
							"description": "One-paragraph summary of the integration, suitable for a pull request description",
						},
						"changes_summary": map[string]any{
							"type":        "string",
							"description": "Bullet list describing what changed in each touched file",
						},
					},
					Required: []string{"summary"},
				},
			},
			Handler: func(_ context.Context, input map[string]any) map[string]any {
				summary, ok := stringParam(input, "summary")
				if !ok || summary == "" {
					return errResult(fmt.Errorf("missing summary parameter"))
				}
				changes, _ := stringParam(input, "changes_summary")
				w.submitted = &submission{Summary: summary, ChangesSummary: changes}
				return map[string]any{"accepted": true}
			},
		},
	}
}
