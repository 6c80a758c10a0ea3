// Package fs implements the filesystem capabilities: read, write, append,
// edit, delete, and find. Every handler resolves its target to an absolute
// path first and gates on that exact path.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

type handlers struct {
	gate tool.Gate
}

func resolve(args map[string]any) (string, error) {
	path, err := tool.String(args, "path")
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return abs, nil
}

func (h *handlers) read(ctx context.Context, args map[string]any) (any, error) {
	path, err := resolve(args)
	if err != nil {
		return nil, err
	}
	if err := h.gate.Decide(ctx, domain.ActionRead, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return map[string]any{"content": string(data), "size": len(data)}, nil
}

func (h *handlers) write(ctx context.Context, args map[string]any) (any, error) {
	path, err := resolve(args)
	if err != nil {
		return nil, err
	}
	content, err := tool.String(args, "content")
	if err != nil {
		return nil, err
	}

	// No-overwrite mode aborts on an existing file before the gatekeeper is
	// even consulted, so the user is never prompted about a write that
	// would be refused anyway.
	if !tool.BoolOr(args, "overwrite", true) {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("file already exists: %s", path)
		}
	}

	if err := h.gate.Decide(ctx, domain.ActionWrite, path); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return map[string]any{"bytes_written": len(content)}, nil
}

func (h *handlers) append(ctx context.Context, args map[string]any) (any, error) {
	path, err := resolve(args)
	if err != nil {
		return nil, err
	}
	content, err := tool.String(args, "content")
	if err != nil {
		return nil, err
	}

	if err := h.gate.Decide(ctx, domain.ActionWrite, path); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create parent directories for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, fmt.Errorf("cannot append to %s: %w", path, err)
	}
	return map[string]any{"bytes_written": n}, nil
}

func (h *handlers) edit(ctx context.Context, args map[string]any) (any, error) {
	path, err := resolve(args)
	if err != nil {
		return nil, err
	}
	find, err := tool.String(args, "find")
	if err != nil {
		return nil, err
	}
	if find == "" {
		return nil, fmt.Errorf("find text must not be empty")
	}
	replace, err := tool.String(args, "replace")
	if err != nil {
		return nil, err
	}

	if err := h.gate.Decide(ctx, domain.ActionEdit, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	// Literal replace-all. Zero matches is an error so a stale edit (the
	// text changed since the caller last read the file) surfaces instead
	// of silently doing nothing.
	content := string(data)
	count := strings.Count(content, find)
	if count == 0 {
		return nil, fmt.Errorf("no occurrences of the find text in %s", path)
	}

	updated := strings.ReplaceAll(content, find, replace)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return nil, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return map[string]any{"replacements": count}, nil
}

func (h *handlers) delete(ctx context.Context, args map[string]any) (any, error) {
	path, err := resolve(args)
	if err != nil {
		return nil, err
	}

	// Deletion is irreversible: the caller must state intent explicitly,
	// on top of whatever the gatekeeper decides.
	confirm, err := tool.Bool(args, "confirm")
	if err != nil {
		return nil, fmt.Errorf("delete requires confirm:true: %w", err)
	}
	if !confirm {
		return nil, fmt.Errorf("delete not confirmed for %s", path)
	}

	if err := h.gate.Decide(ctx, domain.ActionDelete, path); err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("cannot delete %s: %w", path, err)
	}
	return map[string]any{"deleted": path}, nil
}
