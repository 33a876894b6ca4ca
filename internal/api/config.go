// Package api wires tsio's stores, auth chain, and ingestion pipeline into an
// HTTP server implementing the REST/WebSocket surface of spec §6.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tsio/tsio/internal/api/middleware"
	"github.com/tsio/tsio/internal/auth"
	"github.com/tsio/tsio/internal/config"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8080
	// MaxPort is the maximum valid port number.
	MaxPort = 65535
	// DefaultHost is the default server host.
	DefaultHost = "0.0.0.0"
	// DefaultTimeout is the default timeout for HTTP operations.
	DefaultTimeout = 30 * time.Second
	// DefaultShutdownTimeout bounds graceful drain on SIGTERM/SIGINT.
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = slog.LevelInfo
	// DefaultCORSMaxAge is the default CORS max age (24 hours).
	DefaultCORSMaxAge = 86400

	envProduction = "production"
	envDev        = "development"

	defaultSearchMinLength    = 3
	defaultUploadMaxSize      = 200 * 1024 * 1024 // 200MiB
	defaultUploadTimeoutMs    = 60_000
	defaultAccessTokenTTLSecs  = 15 * 60
	defaultRefreshTokenTTLSecs = 7 * 24 * 60 * 60
)

// Static validation errors.
var (
	ErrInvalidPort            = errors.New("invalid port")
	ErrEmptyHost              = errors.New("host cannot be empty")
	ErrInvalidReadTimeout     = errors.New("read timeout must be positive")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrMissingEnvironment     = errors.New("RUST_ENV must be set to development or production")
	ErrDevDatabaseInProd      = errors.New("TSIO_DB_URL must not equal the development default in production")
	ErrDevStorageInProd       = errors.New("TSIO_S3_ACCESS_KEY/TSIO_S3_SECRET_KEY must not equal the development defaults in production")
	ErrDevAdminKeyInProd      = errors.New("TSIO_AUTH_ADMIN_KEY must not equal the development default in production")
	ErrWeakSessionSecretInProd = errors.New("TSIO_GITHUB_OAUTH_SESSION_SECRET must be set and at least 32 characters in production when OAuth is enabled")
)

// FeatureConfig holds the feature-flag surface (spec §6 TSIO_FEATURE_*).
type FeatureConfig struct {
	HTMLViewEnabled bool
	SearchMinLength int
	UploadMaxSize   int64
	UploadTimeoutMs int
}

// OIDCConfig holds the GitHub OIDC verifier surface (spec §6 TSIO_GITHUB_OIDC_*).
type OIDCConfig struct {
	Enabled      bool
	AllowedRepos []string
	Issuer       string
	// Audience is validated only when set (spec §4.4); left empty, the
	// server still verifies signature/issuer but warns at startup that
	// tokens minted for any audience will be accepted.
	Audience string
	// PolicySeedFile optionally points at a YAML document of bootstrap
	// OidcPolicy rows, applied once at startup (see internal/auth's
	// policy_seed.go) so a fresh deployment doesn't start with an empty
	// policy table and nothing but AllowedRepos to fall back on.
	PolicySeedFile string
}

// OAuthConfig holds the GitHub OAuth browser-login surface (spec §6
// TSIO_GITHUB_OAUTH_*).
type OAuthConfig struct {
	Enabled             bool
	ClientID            string
	ClientSecret        string
	AllowedOrgs         []string
	SessionSecret       string
	AccessTokenTTLSecs  int
	RefreshTokenTTLSecs int
	RedirectURL         string
}

// ServerConfig holds the full tsio server configuration: HTTP listener
// settings, the database/object-store/auth surfaces, and feature flags.
type ServerConfig struct {
	Environment string // RUST_ENV: "development" | "production"

	Port               int
	Host               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           slog.Level
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int

	DB       *store.Config
	S3       *objectstore.Config
	AdminKey string
	Features FeatureConfig
	OIDC     OIDCConfig
	OAuth    OAuthConfig

	RateLimiter *middleware.Config
}

// IsProduction reports whether RUST_ENV selects the production profile.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == envProduction
}

// LoadServerConfig loads server configuration from environment variables with
// sensible development defaults.
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Environment:        config.GetEnvStr("RUST_ENV", envDev),
		Port:               config.GetEnvInt("TSIO_SERVER_PORT", DefaultPort),
		Host:               config.GetEnvStr("TSIO_SERVER_HOST", DefaultHost),
		ReadTimeout:        DefaultTimeout,
		WriteTimeout:       DefaultTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		LogLevel:           config.GetEnvLogLevel("TSIO_SERVER_LOG_LEVEL", DefaultLogLevel),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(config.GetEnvStr("TSIO_SERVER_ALLOWED_ORIGINS", "*")),
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Correlation-ID", "X-API-Key", "X-Admin-Key"},
		CORSMaxAge:         DefaultCORSMaxAge,

		DB:       store.LoadConfig(),
		S3:       objectstore.LoadConfig(),
		AdminKey: config.GetEnvStr("TSIO_AUTH_ADMIN_KEY", auth.DevDefaultAdminKey),

		Features: FeatureConfig{
			HTMLViewEnabled: config.GetEnvBool("TSIO_FEATURE_HTML_VIEW_ENABLED", true),
			SearchMinLength: config.GetEnvInt("TSIO_FEATURE_SEARCH_MIN_LENGTH", defaultSearchMinLength),
			UploadMaxSize:   config.GetEnvInt64("TSIO_FEATURE_UPLOAD_MAX_SIZE", defaultUploadMaxSize),
			UploadTimeoutMs: config.GetEnvInt("TSIO_FEATURE_UPLOAD_TIMEOUT_MS", defaultUploadTimeoutMs),
		},

		OIDC: OIDCConfig{
			Enabled:        config.GetEnvBool("TSIO_GITHUB_OIDC_ENABLED", false),
			AllowedRepos:   config.ParseCommaSeparatedList(config.GetEnvStr("TSIO_GITHUB_OIDC_ALLOWED_REPOS", "")),
			Issuer:         config.GetEnvStr("TSIO_GITHUB_OIDC_ISSUER", "https://token.actions.githubusercontent.com"),
			Audience:       config.GetEnvStr("TSIO_GITHUB_OIDC_AUDIENCE", ""),
			PolicySeedFile: config.GetEnvStr("TSIO_OIDC_POLICY_SEED_FILE", ""),
		},

		OAuth: OAuthConfig{
			Enabled:             config.GetEnvBool("TSIO_GITHUB_OAUTH_ENABLED", false),
			ClientID:            config.GetEnvStr("TSIO_GITHUB_OAUTH_CLIENT_ID", ""),
			ClientSecret:        config.GetEnvStr("TSIO_GITHUB_OAUTH_CLIENT_SECRET", ""),
			AllowedOrgs:         config.ParseCommaSeparatedList(config.GetEnvStr("TSIO_GITHUB_OAUTH_ALLOWED_ORGS", "")),
			SessionSecret:       config.GetEnvStr("TSIO_GITHUB_OAUTH_SESSION_SECRET", auth.DevDefaultSessionSecret),
			AccessTokenTTLSecs:  config.GetEnvInt("TSIO_GITHUB_OAUTH_ACCESS_TOKEN_TTL_SECS", defaultAccessTokenTTLSecs),
			RefreshTokenTTLSecs: config.GetEnvInt("TSIO_GITHUB_OAUTH_REFRESH_TOKEN_TTL_SECS", defaultRefreshTokenTTLSecs),
			RedirectURL:         config.GetEnvStr("TSIO_GITHUB_OAUTH_REDIRECT_URL", "http://localhost:8080/auth/github/callback"),
		},

		RateLimiter: middleware.LoadConfig(),
	}

	return cfg
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to middleware.CORSConfig.
func (c ServerConfig) ToCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// GetAllowedOrigins returns the allowed origins for CORS.
func (c CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }

// GetAllowedMethods returns the allowed methods for CORS.
func (c CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }

// GetAllowedHeaders returns the allowed headers for CORS.
func (c CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }

// GetMaxAge returns the max age for CORS preflight cache.
func (c CORSConfig) GetMaxAge() int { return c.MaxAge }

// Validate validates the server configuration, including the spec §6
// production-startup refusal rules.
func (c ServerConfig) Validate() error {
	if c.Environment != envProduction && c.Environment != envDev {
		return ErrMissingEnvironment
	}

	if c.Port <= 0 || c.Port > MaxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, MaxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if !c.IsProduction() {
		return nil
	}

	if c.DB.IsDevDefault() {
		return ErrDevDatabaseInProd
	}

	if c.S3.IsDevDefault() {
		return ErrDevStorageInProd
	}

	if c.AdminKey == auth.DevDefaultAdminKey {
		return ErrDevAdminKeyInProd
	}

	if c.OAuth.Enabled {
		if len(c.OAuth.SessionSecret) < auth.MinSessionSecretLength ||
			c.OAuth.SessionSecret == auth.DevDefaultSessionSecret {
			return ErrWeakSessionSecretInProd
		}
	}

	return nil
}
