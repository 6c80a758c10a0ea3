package domain

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims is the RS256 token payload shared by agents and operators.
// Scopes name the tools the bearer may request: exact ids
// ("archon.fs.read"), namespace wildcards ("archon.fs.*") or "*".
type CustomClaims struct {
	Requester string          `json:"requester"`
	Scopes    map[string]bool `json:"scopes"`
	Operator  bool            `json:"operator,omitempty"`
	jwt.RegisteredClaims
}

// AllowsTool reports whether the claim set covers a tool id.
func (c *CustomClaims) AllowsTool(name string) bool {
	if c.Scopes == nil {
		return false
	}
	if c.Scopes["*"] || c.Scopes[name] {
		return true
	}
	for scope, ok := range c.Scopes {
		if !ok {
			continue
		}
		if prefix, found := strings.CutSuffix(scope, ".*"); found && strings.HasPrefix(name, prefix+".") {
			return true
		}
	}
	return false
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // always "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}
