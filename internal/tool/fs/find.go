package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

// Directories never descended into, regardless of pattern. Dependency and
// build trees would otherwise dominate every search.
var excludedDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"__pycache__":  {},
}

func (h *handlers) find(ctx context.Context, args map[string]any) (any, error) {
	root, err := tool.String(args, "root")
	if err != nil {
		return nil, err
	}
	pattern, err := tool.String(args, "pattern")
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve root %q: %w", root, err)
	}

	if info, statErr := os.Stat(absRoot); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	if err := h.gate.Decide(ctx, domain.ActionFind, absRoot); err != nil {
		return nil, err
	}

	// A bare pattern like "*.ts" matches against each file's basename, so
	// it recurses naturally; a pattern containing a separator matches the
	// path relative to root ("src/**/*.go").
	matchBase := !strings.Contains(pattern, "/")

	matches := []string{}
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, excluded := excludedDirs[d.Name()]; excluded && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		target := rel
		if matchBase {
			target = d.Name()
		}
		if ok, matchErr := doublestar.Match(pattern, target); matchErr == nil && ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("search under %s failed: %w", absRoot, walkErr)
	}

	return map[string]any{"matches": matches, "count": len(matches)}, nil
}
