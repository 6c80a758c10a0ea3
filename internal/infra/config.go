package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration of the runtime.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Gatekeeper GatekeeperConfig `mapstructure:"gatekeeper"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsConfig controls the Prometheus endpoint, served on its own listener
// so scrapes never contend with the dispatch path.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig is optional. When Addr is empty the runtime runs standalone:
// no kill-switch warmup and no remote decision channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// AuthConfig holds the RSA key material for RS256 tokens plus the operator
// accounts allowed to resolve pending permission requests.
type AuthConfig struct {
	PublicKeyPath  string            `mapstructure:"public_key_path"`
	PrivateKeyPath string            `mapstructure:"private_key_path"`
	TokenTTL       time.Duration     `mapstructure:"token_ttl"`
	BcryptCost     int               `mapstructure:"bcrypt_cost"`
	Operators      []OperatorAccount `mapstructure:"operators"`

	PublicKey  []byte `mapstructure:"-"`
	PrivateKey []byte `mapstructure:"-"`
}

type OperatorAccount struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt
}

// GatekeeperConfig selects the prompt backend and the static rule sets.
// Rules are doublestar patterns; deny is evaluated before approve.
type GatekeeperConfig struct {
	// Mode: "terminal", "queue", or "auto" (terminal when stdin is a TTY).
	Mode      string        `mapstructure:"mode"`
	PromptTTL time.Duration `mapstructure:"prompt_ttl"`

	AutoApprove []RuleConfig `mapstructure:"auto_approve"`
	AutoDeny    []RuleConfig `mapstructure:"auto_deny"`
}

type RuleConfig struct {
	Action   string `mapstructure:"action"`
	Resource string `mapstructure:"resource"`
}

type AuditConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type DispatchConfig struct {
	// Requests per second admitted to /v1/dispatch, with burst headroom.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type ToolsConfig struct {
	ExecTimeout time.Duration             `mapstructure:"exec_timeout"`
	HTTPTimeout time.Duration             `mapstructure:"http_timeout"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
}

// DatabaseConfig names one target the archon.db.query tool may address.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig merges config.yaml (searched in . and ./configs) with
// environment variables; SERVER_PORT overrides server.port and so on.
// A missing file is fine — defaults plus ENV carry a dev setup.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// PEM material may arrive inline via ENV (container deployments) or as
	// a file path from the config.
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("gatekeeper.mode", "auto")
	v.SetDefault("gatekeeper.prompt_ttl", 5*time.Minute)
	v.SetDefault("audit.capacity", 100)
	v.SetDefault("dispatch.rate_limit", 50.0)
	v.SetDefault("dispatch.rate_burst", 20)
	v.SetDefault("tools.exec_timeout", 60*time.Second)
	v.SetDefault("tools.http_timeout", 30*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
