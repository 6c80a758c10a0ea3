package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Run from an empty directory so no config.yaml is picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "auto", cfg.Gatekeeper.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Gatekeeper.PromptTTL)
	assert.Equal(t, 100, cfg.Audit.Capacity)
	assert.Equal(t, 50.0, cfg.Dispatch.RateLimit)
	assert.Equal(t, 20, cfg.Dispatch.RateBurst)
	assert.Equal(t, 60*time.Second, cfg.Tools.ExecTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9000
gatekeeper:
  mode: queue
  auto_deny:
    - action: "*"
      resource: "/etc/**"
audit:
  capacity: 25
tools:
  databases:
    main:
      url: "postgres://localhost/app"
      max_conns: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "queue", cfg.Gatekeeper.Mode)
	require.Len(t, cfg.Gatekeeper.AutoDeny, 1)
	assert.Equal(t, "/etc/**", cfg.Gatekeeper.AutoDeny[0].Resource)
	assert.Equal(t, 25, cfg.Audit.Capacity)
	require.Contains(t, cfg.Tools.Databases, "main")
	assert.Equal(t, int32(4), cfg.Tools.Databases["main"].MaxConns)
}

func TestKeyMaterialFromEnv(t *testing.T) {
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "-----BEGIN PUBLIC KEY-----")

	data := loadKeyResource("", "AUTH_PUBLIC_KEY_DATA")
	assert.Equal(t, []byte("-----BEGIN PUBLIC KEY-----"), data)
}

func TestKeyMaterialFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("pem-bytes"), 0o600))

	data := loadKeyResource(path, "AUTH_MISSING_ENV_KEY")
	assert.Equal(t, []byte("pem-bytes"), data)

	assert.Nil(t, loadKeyResource(filepath.Join(t.TempDir(), "absent.pem"), "AUTH_MISSING_ENV_KEY"))
}
