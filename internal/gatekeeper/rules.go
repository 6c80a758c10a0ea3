package gatekeeper

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/infra"
)

// Effect is the outcome of matching a permission request against the rule
// set before any human is consulted.
type Effect int

const (
	// Prompt means no rule matched; the decision goes to the prompter.
	Prompt Effect = iota
	Allow
	Deny
)

// Rule matches an action plus a resource glob. "*" matches any action.
// Resource patterns use doublestar syntax, so "/tmp/**" covers subtrees.
type Rule struct {
	Action   string
	Resource string
}

func (r Rule) matches(action domain.Action, resource string) bool {
	if r.Action != "*" && r.Action != string(action) {
		return false
	}
	ok, err := doublestar.Match(r.Resource, resource)
	return err == nil && ok
}

// Rules is the configured auto-approve / auto-deny policy. Deny is checked
// before allow, so overlapping patterns refuse.
type Rules struct {
	allow []Rule
	deny  []Rule
}

// NewRules validates and compiles the configured rule lists. Invalid glob
// patterns fail startup rather than silently never matching.
func NewRules(cfg infra.GatekeeperConfig) (*Rules, error) {
	build := func(raw []infra.RuleConfig, kind string) ([]Rule, error) {
		rules := make([]Rule, 0, len(raw))
		for _, rc := range raw {
			if rc.Action == "" || rc.Resource == "" {
				return nil, fmt.Errorf("%s rule needs both action and resource: %+v", kind, rc)
			}
			if !doublestar.ValidatePattern(rc.Resource) {
				return nil, fmt.Errorf("%s rule has invalid pattern %q", kind, rc.Resource)
			}
			rules = append(rules, Rule{Action: rc.Action, Resource: rc.Resource})
		}
		return rules, nil
	}

	allow, err := build(cfg.AutoApprove, "auto_approve")
	if err != nil {
		return nil, err
	}
	deny, err := build(cfg.AutoDeny, "auto_deny")
	if err != nil {
		return nil, err
	}
	return &Rules{allow: allow, deny: deny}, nil
}

// Evaluate returns the policy effect for an action on a resource.
func (r *Rules) Evaluate(action domain.Action, resource string) Effect {
	for _, rule := range r.deny {
		if rule.matches(action, resource) {
			return Deny
		}
	}
	for _, rule := range r.allow {
		if rule.matches(action, resource) {
			return Allow
		}
	}
	return Prompt
}
