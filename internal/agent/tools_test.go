package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) (*workspaceTools, string) {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "client.py"), []byte("import anthropic\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# demo\n"), 0o644))

	return newWorkspaceTools(root), root
}

func TestListFilesSkipsGitDir(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	files, err := ws.listFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "src/client.py"}, files)
}

func TestReadFile(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	content, err := ws.readFile(context.Background(), "src/client.py")
	require.NoError(t, err)
	assert.Equal(t, "import anthropic\n", content)

	_, err = ws.readFile(context.Background(), "missing.txt")
	assert.Error(t, err)
}

func TestResolveRejectsEscapes(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	for _, path := range []string{
		"",
		"/etc/passwd",
		"..",
		"../outside.txt",
		"src/../../outside.txt",
		".git/config",
		".git",
	} {
		_, err := ws.resolve(path)
		assert.Error(t, err, "path %q should be rejected", path)
	}

	// Dotted names that merely start with ".git" are fine.
	_, err := ws.resolve(".github/workflows/ci.yml")
	assert.NoError(t, err)
}

func TestWriteFileTracksChanges(t *testing.T) {
	ws, root := newTestWorkspace(t)
	ctx := context.Background()

	require.NoError(t, ws.writeFile(ctx, "src/client.py", "import anthropic  # via helicone\n"))
	require.NoError(t, ws.writeFile(ctx, "src/helicone.py", "BASE_URL = \"https://anthropic.helicone.ai\"\n"))

	assert.Equal(t, []string{"src/client.py"}, ws.ModifiedFiles())
	assert.Equal(t, []string{"src/helicone.py"}, ws.AddedFiles())

	data, err := os.ReadFile(filepath.Join(root, "src", "helicone.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "helicone.ai")
}

func TestWriteFileRewriteOfAddedStaysAdded(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	ctx := context.Background()

	require.NoError(t, ws.writeFile(ctx, "new.txt", "v1"))
	require.NoError(t, ws.writeFile(ctx, "new.txt", "v2"))

	assert.Equal(t, []string{"new.txt"}, ws.AddedFiles())
	assert.Empty(t, ws.ModifiedFiles())
}

func TestWriteFileCreatesParentDirs(t *testing.T) {
	ws, root := newTestWorkspace(t)

	require.NoError(t, ws.writeFile(context.Background(), "deep/nested/file.txt", "x"))
	_, err := os.Stat(filepath.Join(root, "deep", "nested", "file.txt"))
	assert.NoError(t, err)
}

func TestToolHandlers(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	ctx := context.Background()
	tools := ws.tools()

	t.Run("list_files", func(t *testing.T) {
		result := tools["list_files"].Handler(ctx, map[string]any{})
		assert.Equal(t, 2, result["count"])
	})

	t.Run("read_file missing path", func(t *testing.T) {
		result := tools["read_file"].Handler(ctx, map[string]any{})
		assert.Contains(t, result, "error")
	})

	t.Run("write then submit", func(t *testing.T) {
		result := tools["write_file"].Handler(ctx, map[string]any{
			"path":    "src/helicone.py",
			"content": "x",
		})
		assert.NotContains(t, result, "error")

		result = tools["submit_result"].Handler(ctx, map[string]any{
			"summary":         "Routed Anthropic calls through Helicone.",
			"changes_summary": "- src/helicone.py: new proxy config",
		})
		assert.Equal(t, true, result["accepted"])
		require.NotNil(t, ws.submitted)
		assert.Equal(t, "Routed Anthropic calls through Helicone.", ws.submitted.Summary)
	})

	t.Run("submit without summary", func(t *testing.T) {
		ws2, _ := newTestWorkspace(t)
		result := ws2.tools()["submit_result"].Handler(ctx, map[string]any{})
		assert.Contains(t, result, "error")
		assert.Nil(t, ws2.submitted)
	})
}
