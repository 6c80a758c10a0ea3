// Package meta implements the introspection tools: listing what is
// registered and fetching per-tool help. These perform no side effects and
// are not gated.
package meta

import (
	"context"

	"github.com/arcaneos/archon-runtime/internal/tool"
)

// RegisterAll wires archon.tools.list and archon.tools.help into the
// registry they describe.
func RegisterAll(registry *tool.Registry) error {
	list := func(_ context.Context, _ map[string]any) (any, error) {
		names := registry.List()
		return map[string]any{"tools": names, "count": len(names)}, nil
	}

	help := func(_ context.Context, args map[string]any) (any, error) {
		name, err := tool.String(args, "name")
		if err != nil {
			return nil, err
		}
		text, err := registry.Help(name)
		if err != nil {
			return nil, err
		}
		return map[string]any{"name": name, "help": text}, nil
	}

	specs := []tool.Spec{
		{Name: "archon.tools.list", Help: "List all registered tool names.", Handler: list},
		{Name: "archon.tools.help", Help: "Show the documentation for one tool. Args: name.", Handler: help},
	}
	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
