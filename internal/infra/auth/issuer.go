package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/infra"
)

var ErrBadCredentials = errors.New("invalid username or password")

// Issuer signs operator tokens for the console surface. Accounts come from
// config (bcrypt hashes); there is no user store by design — everything this
// runtime keeps is session-scoped.
type Issuer struct {
	privateKey *rsa.PrivateKey
	ttl        time.Duration
	operators  map[string]infra.OperatorAccount
}

func NewIssuer(privKey *rsa.PrivateKey, ttl time.Duration, operators []infra.OperatorAccount) *Issuer {
	accounts := make(map[string]infra.OperatorAccount, len(operators))
	for _, op := range operators {
		accounts[op.Username] = op
	}
	return &Issuer{privateKey: privKey, ttl: ttl, operators: accounts}
}

// Login checks credentials and issues an operator token. Operator tokens
// carry the wildcard scope: an operator may exercise any tool through the
// console, still subject to the gatekeeper like everyone else.
func (i *Issuer) Login(username, password string) (*domain.TokenResponse, error) {
	account, ok := i.operators[username]
	if !ok {
		// Burn a comparison anyway so unknown users cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGZLcTQqy.yVXJk1LZxGMYzRzc0tO2pm"), []byte(password))
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	now := time.Now()
	claims := domain.CustomClaims{
		Requester: "operator:" + username,
		Scopes:    map[string]bool{"*": true},
		Operator:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(i.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(i.ttl.Seconds()),
	}, nil
}

// IssueAgentToken mints a token for an agent with an explicit scope set.
// Used by deploy tooling and tests; agents never mint their own.
func (i *Issuer) IssueAgentToken(requester string, scopes map[string]bool) (string, error) {
	now := time.Now()
	claims := domain.CustomClaims{
		Requester: requester,
		Scopes:    scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   requester,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(i.privateKey)
}
