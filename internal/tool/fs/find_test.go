package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcaneos/archon-runtime/internal/tool"
)

func seedTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return root
}

func runFind(t *testing.T, root, pattern string) []string {
	t.Helper()
	h := newHandlers(tool.OpenGate{})
	res, err := h.find(context.Background(), map[string]any{"root": root, "pattern": pattern})
	require.NoError(t, err)

	payload := res.(map[string]any)
	matches := payload["matches"].([]string)
	assert.Equal(t, len(matches), payload["count"])
	return matches
}

func TestFindExtensionExactRecursive(t *testing.T) {
	root := seedTree(t, "a.ts", "b.tsx", "sub/c.ts")

	matches := runFind(t, root, "*.ts")
	assert.ElementsMatch(t, []string{"a.ts", "sub/c.ts"}, matches)
}

func TestFindPathPattern(t *testing.T) {
	root := seedTree(t, "src/main.go", "src/util/helper.go", "docs/readme.md")

	matches := runFind(t, root, "src/**/*.go")
	assert.ElementsMatch(t, []string{"src/main.go", "src/util/helper.go"}, matches)
}

func TestFindSkipsExcludedDirs(t *testing.T) {
	root := seedTree(t,
		"app.ts",
		"node_modules/lib/index.ts",
		".git/hooks/pre-commit.ts",
		"vendor/dep/dep.ts",
	)

	matches := runFind(t, root, "*.ts")
	assert.Equal(t, []string{"app.ts"}, matches)
}

func TestFindNoMatchesIsEmptyNotError(t *testing.T) {
	root := seedTree(t, "a.go")
	assert.Empty(t, runFind(t, root, "*.rs"))
}

func TestFindInvalidPattern(t *testing.T) {
	h := newHandlers(tool.OpenGate{})
	_, err := h.find(context.Background(), map[string]any{"root": t.TempDir(), "pattern": "[unclosed"})
	assert.Error(t, err)
}
