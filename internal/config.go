package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/storage/sqlstore"
	"github.com/starford/folio/internal/summarize"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeJWT      = "jwt"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Store      StoreConfig       `yaml:"store"`
	Auth       AuthConfig        `yaml:"auth"`
	Summarizer SummarizerConfig  `yaml:"summarizer"`
	Cache      CacheConfig       `yaml:"cache"`
	MCP        MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Summarizer.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects the remote data store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Migrate applies pending schema migrations on startup.
	Migrate bool `yaml:"migrate"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(sqlstore.DriverSQLite, sqlstore.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how sessions are established:
//   - "disabled" (default): every request acts as DevUserID, suitable for local dev.
//   - "jwt": HS256 Bearer tokens signed with JWTSecret; the subject is the user id.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	JWTSecret string `yaml:"jwt_secret"`
	DevUserID string `yaml:"dev_user_id"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeJWT)),
		validation.Field(&c.DevUserID, validation.When(c.Mode == AuthModeDisabled, validation.Required)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeJWT && len(c.JWTSecret) < 32 {
		return fmt.Errorf("auth: mode is %q but jwt_secret is shorter than 32 bytes", AuthModeJWT)
	}
	return nil
}

// AuthEnabled returns true when token authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeJWT
}

// SummarizerConfig configures the summarization gateway. An empty APIKey
// keeps the gateway wired but every call fails without a network request.
type SummarizerConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the summarizer configuration.
func (c *SummarizerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// CacheConfig configures the per-user query cache.
type CacheConfig struct {
	// StaleAfter marks fresh entries stale after this age. Zero keeps them
	// fresh until a mutation invalidates them.
	StaleAfter time.Duration `yaml:"stale_after"`
	// GCAfter removes entries no request has used for this long.
	GCAfter time.Duration `yaml:"gc_after"`
	// UserIdleTTL drops the whole cache of a user idle for this long.
	UserIdleTTL time.Duration `yaml:"user_idle_ttl"`
	// SweepInterval is how often idle entries and users are collected.
	// Zero disables collection.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StaleAfter, validation.Min(time.Duration(0))),
		validation.Field(&c.GCAfter, validation.Min(time.Duration(0))),
		validation.Field(&c.UserIdleTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
}

// MCPConfig configures the MCP stdio server.
type MCPConfig struct {
	// UserID is the account every MCP tool call acts as.
	UserID string `yaml:"user_id"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver:  sqlstore.DriverSQLite,
			DSN:     "./folio.db",
			Migrate: true,
		},
		Auth: AuthConfig{
			Mode:      AuthModeDisabled,
			DevUserID: "local",
		},
		Summarizer: SummarizerConfig{
			Endpoint: summarize.DefaultEndpoint,
			Timeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			StaleAfter:    time.Minute,
			GCAfter:       5 * time.Minute,
			UserIdleTTL:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
		MCP: MCPConfig{
			UserID: "local",
		},
	}
}
