package db

import (
	"context"
	"fmt"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

type handlers struct {
	gate   tool.Gate
	runner QueryRunner
}

// RegisterAll wires archon.db.query into the registry. runner may be nil
// when no databases are configured; the tool then reports a structured
// error instead of disappearing from the registry.
func RegisterAll(registry *tool.Registry, gate tool.Gate, runner QueryRunner) error {
	h := &handlers{gate: gate, runner: runner}

	return registry.Register(tool.Spec{
		Name: "archon.db.query",
		Help: "Run a parameterized query against a configured database. Args: database, query, " +
			"params (optional list, bound positionally). Returns rows and a row count.",
		Handler: h.query,
	})
}

func (h *handlers) query(ctx context.Context, args map[string]any) (any, error) {
	database, err := tool.String(args, "database")
	if err != nil {
		return nil, err
	}
	query, err := tool.String(args, "query")
	if err != nil {
		return nil, err
	}

	var params []any
	if raw, ok := args["params"].([]any); ok {
		params = raw
	}

	if h.runner == nil {
		return nil, fmt.Errorf("no databases configured")
	}

	// Resource identifies the exact statement, so a grant covers this
	// query text on this database and nothing broader.
	resource := database + ":" + query
	if err := h.gate.Decide(ctx, domain.ActionDBQuery, resource); err != nil {
		return nil, err
	}

	rows, err := h.runner.Query(ctx, database, query, params)
	if err != nil {
		return nil, fmt.Errorf("query on %q failed: %w", database, err)
	}

	return map[string]any{"rows": rows, "row_count": len(rows)}, nil
}
