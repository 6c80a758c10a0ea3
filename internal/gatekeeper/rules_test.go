package gatekeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/infra"
)

func TestRulesDenyWinsOverAllow(t *testing.T) {
	rules, err := NewRules(infra.GatekeeperConfig{
		AutoApprove: []infra.RuleConfig{{Action: "read", Resource: "/workspace/**"}},
		AutoDeny:    []infra.RuleConfig{{Action: "*", Resource: "/workspace/secrets/**"}},
	})
	require.NoError(t, err)

	assert.Equal(t, Allow, rules.Evaluate(domain.ActionRead, "/workspace/app/main.go"))
	assert.Equal(t, Deny, rules.Evaluate(domain.ActionRead, "/workspace/secrets/key.pem"))
	assert.Equal(t, Prompt, rules.Evaluate(domain.ActionWrite, "/workspace/app/main.go"))
}

func TestRulesWildcardAction(t *testing.T) {
	rules, err := NewRules(infra.GatekeeperConfig{
		AutoDeny: []infra.RuleConfig{{Action: "*", Resource: "/etc/**"}},
	})
	require.NoError(t, err)

	assert.Equal(t, Deny, rules.Evaluate(domain.ActionRead, "/etc/passwd"))
	assert.Equal(t, Deny, rules.Evaluate(domain.ActionDelete, "/etc/hosts"))
}

func TestRulesExecPatterns(t *testing.T) {
	rules, err := NewRules(infra.GatekeeperConfig{
		AutoApprove: []infra.RuleConfig{{Action: "exec", Resource: "ls*"}},
		AutoDeny:    []infra.RuleConfig{{Action: "exec", Resource: "rm*"}},
	})
	require.NoError(t, err)

	assert.Equal(t, Allow, rules.Evaluate(domain.ActionExec, "ls -la"))
	assert.Equal(t, Deny, rules.Evaluate(domain.ActionExec, "rm -rf /tmp/x"))
	assert.Equal(t, Prompt, rules.Evaluate(domain.ActionExec, "git status"))
}

func TestRulesRejectInvalidConfig(t *testing.T) {
	_, err := NewRules(infra.GatekeeperConfig{
		AutoApprove: []infra.RuleConfig{{Action: "read", Resource: ""}},
	})
	assert.Error(t, err)

	_, err = NewRules(infra.GatekeeperConfig{
		AutoDeny: []infra.RuleConfig{{Action: "read", Resource: "/tmp/[unclosed"}},
	})
	assert.Error(t, err)
}
