package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arcaneos/archon-runtime/internal/infra"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func testIssuer(t *testing.T, key *rsa.PrivateKey, ttl time.Duration) *Issuer {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewIssuer(key, ttl, []infra.OperatorAccount{
		{Username: "admin", PasswordHash: string(hash)},
	})
}

func TestLoginAndVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	issuer := testIssuer(t, key, time.Hour)
	validator := NewBaseValidator(&key.PublicKey)

	resp, err := issuer.Login("admin", "hunter2")
	require.NoError(t, err)

	claims, err := validator.VerifyToken("Bearer " + resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator:admin", claims.Requester)
	assert.True(t, claims.Operator)
	assert.True(t, claims.AllowsTool("archon.fs.read"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	issuer := testIssuer(t, testKey(t), time.Hour)

	_, err := issuer.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = issuer.Login("ghost", "hunter2")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAgentTokenScopes(t *testing.T) {
	key := testKey(t)
	issuer := testIssuer(t, key, time.Hour)
	validator := NewBaseValidator(&key.PublicKey)

	token, err := issuer.IssueAgentToken("agent-7", map[string]bool{"archon.fs.*": true})
	require.NoError(t, err)

	claims, err := validator.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Requester)
	assert.False(t, claims.Operator)
	assert.True(t, claims.AllowsTool("archon.fs.read"))
	assert.False(t, claims.AllowsTool("archon.exec"))
}

func TestExpiredTokenRejected(t *testing.T) {
	key := testKey(t)
	issuer := testIssuer(t, key, -time.Minute)
	validator := NewBaseValidator(&key.PublicKey)

	token, err := issuer.IssueAgentToken("agent-7", nil)
	require.NoError(t, err)

	_, err = validator.VerifyToken(token)
	assert.Error(t, err)
}

func TestWrongKeyRejected(t *testing.T) {
	issuer := testIssuer(t, testKey(t), time.Hour)
	otherKey := testKey(t)
	validator := NewBaseValidator(&otherKey.PublicKey)

	token, err := issuer.IssueAgentToken("agent-7", nil)
	require.NoError(t, err)

	_, err = validator.VerifyToken(token)
	assert.Error(t, err)
}

func TestParsePEMKeys(t *testing.T) {
	key := testKey(t)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	parsedPriv, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	assert.True(t, key.Equal(parsedPriv))

	parsedPub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsedPub))

	_, err = ParseRSAPublicKey(nil)
	assert.Error(t, err)
	_, err = ParseRSAPrivateKey([]byte("not pem"))
	assert.Error(t, err)
}
