// Package config provides configuration management for WebCAF.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (nested keys map to SECTION_KEY, e.g. DATABASE_URL,
//    SERVER_PORT; the Django-era names ENABLED_2FA, SSO_MODE, LOGIN_URL and
//    OIDC_* are bound as aliases)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SSO modes.
const (
	SSOModeExternal = "external"
	SSOModeNone     = "none"
)

// Token endpoint authentication methods.
const (
	TokenAuthClientSecretPost  = "client_secret_post"
	TokenAuthClientSecretBasic = "client_secret_basic"
	TokenAuthPrivateKeyJWT     = "private_key_jwt"
)

// Claim verification modes.
const (
	ClaimsModeStrict  = "strict"
	ClaimsModeRelaxed = "relaxed"
	ClaimsModeDebug   = "debug"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Session      SessionConfig      `mapstructure:"session"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Security     SecurityConfig     `mapstructure:"security"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Auth         AuthConfig         `mapstructure:"auth"`
	OIDC         OIDCConfig         `mapstructure:"oidc"`
	TwoFactor    TwoFactorConfig    `mapstructure:"two_factor"`
	Mail         MailConfig         `mapstructure:"mail"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Notification NotificationConfig `mapstructure:"notification"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORS is only applied when AllowedOrigins is non-empty.
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pgxpool is shared by repositories, sessions and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// SessionConfig contains session storage settings.
type SessionConfig struct {
	Backend     string        `mapstructure:"backend"` // postgres, redis or memory
	Lifetime    time.Duration `mapstructure:"lifetime"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Cookie      string        `mapstructure:"cookie"`
	Secure      bool          `mapstructure:"secure"`
	HttpOnly    bool          `mapstructure:"http_only"`
}

// RedisConfig is used when session.backend or rate_limit.backend is "redis".
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	SessionSecret string `mapstructure:"session_secret"`
	EncryptionKey string `mapstructure:"encryption_key"`

	// ProfileDeletionGuards blocks deleting your own profile and the last
	// organisation lead. Off unless explicitly enabled.
	ProfileDeletionGuards bool `mapstructure:"profile_deletion_guards"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	MailPoolSize    int `mapstructure:"mail_pool_size"`
}

// AuthConfig holds the gate toggles.
type AuthConfig struct {
	Enabled2FA        bool   `mapstructure:"enabled_2fa"`
	SSOMode           string `mapstructure:"sso_mode"`
	LoginURL          string `mapstructure:"login_url"`
	LogoutRedirectURL string `mapstructure:"logout_redirect_url"`
}

// SSODisabled reports whether local login replaces the identity provider.
func (a AuthConfig) SSODisabled() bool {
	return strings.EqualFold(strings.TrimSpace(a.SSOMode), SSOModeNone)
}

// OIDCConfig contains relying-party settings for the external identity provider.
type OIDCConfig struct {
	Issuer                string `mapstructure:"issuer"`
	Discovery             bool   `mapstructure:"discovery"`
	ClientID              string `mapstructure:"client_id"`
	ClientSecret          string `mapstructure:"client_secret"`
	AuthorizationEndpoint string `mapstructure:"authorization_endpoint"`
	TokenEndpoint         string `mapstructure:"token_endpoint"`
	UserEndpoint          string `mapstructure:"user_endpoint"`
	JWKSEndpoint          string `mapstructure:"jwks_endpoint"`
	LogoutEndpoint        string `mapstructure:"logout_endpoint"`
	RedirectURL           string `mapstructure:"redirect_url"`
	Scopes                string `mapstructure:"scopes"`
	SignAlgo              string `mapstructure:"sign_algo"`

	TokenAuthMethod           string `mapstructure:"token_auth_method"`
	ClientAssertionPrivateKey string `mapstructure:"client_assertion_private_key"`
	ClientAssertionKID        string `mapstructure:"client_assertion_kid"`
	ClientAssertionAlg        string `mapstructure:"client_assertion_alg"`

	UserAgent   string        `mapstructure:"user_agent"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	ClaimsMode  string        `mapstructure:"claims_mode"`

	// Legacy boolean switches, folded into ClaimsMode by normalise.
	RelaxClaims bool `mapstructure:"relax_claims"`
	DebugClaims bool `mapstructure:"debug_claims"`
}

// ScopeList splits the space-separated scope string.
func (o OIDCConfig) ScopeList() []string {
	return strings.Fields(o.Scopes)
}

// TwoFactorConfig configures the emailed one-time passcode.
type TwoFactorConfig struct {
	Issuer string `mapstructure:"issuer"`
	Period uint   `mapstructure:"period"` // seconds a code stays valid
	Digits int    `mapstructure:"digits"`
	Skew   uint   `mapstructure:"skew"`

	// MaxAttempts wrong codes discard the user's secret; a new code must
	// then be requested.
	MaxAttempts int `mapstructure:"max_attempts"`
	// ResendCooldown is the minimum gap between two mailed codes.
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
}

// MailConfig selects how outbound mail (passcodes) is delivered.
type MailConfig struct {
	Backend  string `mapstructure:"backend"` // log or smtp
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// RatePerSecond and Burst cap outbound mail for the whole process.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// RateLimitConfig throttles the sign-in pages.
type RateLimitConfig struct {
	Backend        string        `mapstructure:"backend"` // memory or redis
	KeyPrefix      string        `mapstructure:"key_prefix"`
	LoginAttempts  int           `mapstructure:"login_attempts"`
	LoginWindow    time.Duration `mapstructure:"login_window"`
	VerifyAttempts int           `mapstructure:"verify_attempts"`
	VerifyWindow   time.Duration `mapstructure:"verify_window"`
}

// MetricsConfig contains the Prometheus listener settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// NotificationConfig contains inbox retention and reminder settings.
type NotificationConfig struct {
	Retention      time.Duration `mapstructure:"retention"`
	ReminderWindow time.Duration `mapstructure:"reminder_window"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// legacyEnv maps config keys to the environment names used by earlier
// deployments, so existing secrets keep working.
var legacyEnv = map[string]string{
	"auth.enabled_2fa":                  "ENABLED_2FA",
	"auth.sso_mode":                     "SSO_MODE",
	"auth.login_url":                    "LOGIN_URL",
	"auth.logout_redirect_url":          "LOGOUT_REDIRECT_URL",
	"oidc.issuer":                       "OIDC_OP_ISSUER",
	"oidc.client_id":                    "OIDC_RP_CLIENT_ID",
	"oidc.client_secret":                "OIDC_RP_CLIENT_SECRET",
	"oidc.authorization_endpoint":       "OIDC_OP_AUTHORIZATION_ENDPOINT",
	"oidc.token_endpoint":               "OIDC_OP_TOKEN_ENDPOINT",
	"oidc.user_endpoint":                "OIDC_OP_USER_ENDPOINT",
	"oidc.jwks_endpoint":                "OIDC_OP_JWKS_ENDPOINT",
	"oidc.logout_endpoint":              "OIDC_OP_LOGOUT_ENDPOINT",
	"oidc.scopes":                       "OIDC_RP_SCOPES",
	"oidc.sign_algo":                    "OIDC_RP_SIGN_ALGO",
	"oidc.token_auth_method":            "OIDC_TOKEN_AUTH_METHOD",
	"oidc.client_assertion_private_key": "OIDC_CLIENT_ASSERTION_PRIVATE_KEY",
	"oidc.client_assertion_kid":         "OIDC_CLIENT_ASSERTION_KID",
	"oidc.client_assertion_alg":         "OIDC_CLIENT_ASSERTION_ALG",
	"oidc.user_agent":                   "OIDC_USER_AGENT",
	"oidc.relax_claims":                 "OIDC_RELAX_CLAIMS",
	"oidc.debug_claims":                 "OIDC_DEBUG_CLAIMS",
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/webcaf")

	// Maps nested config: database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// normalise fills derived values that depend on more than one key.
func (c *Config) normalise() {
	c.Auth.SSOMode = strings.ToLower(strings.TrimSpace(c.Auth.SSOMode))
	if c.OIDC.RedirectURL == "" && c.Server.BaseURL != "" {
		c.OIDC.RedirectURL = strings.TrimRight(c.Server.BaseURL, "/") + "/oidc/callback/"
	}
	switch {
	case c.OIDC.RelaxClaims:
		c.OIDC.ClaimsMode = ClaimsModeRelaxed
	case c.OIDC.DebugClaims:
		c.OIDC.ClaimsMode = ClaimsModeDebug
	}
	c.OIDC.ClaimsMode = strings.ToLower(strings.TrimSpace(c.OIDC.ClaimsMode))
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.SessionSecret == "" {
		return fmt.Errorf("security.session_secret must not be empty")
	}
	if len(c.Security.SessionSecret) < 32 {
		return fmt.Errorf("security.session_secret must be at least 32 characters")
	}

	if !slices.Contains([]string{SSOModeExternal, SSOModeNone}, c.Auth.SSOMode) {
		return fmt.Errorf("auth.sso_mode must be %q or %q, got %q", SSOModeExternal, SSOModeNone, c.Auth.SSOMode)
	}
	if c.Auth.SSODisabled() && c.Auth.LoginURL == "" {
		return fmt.Errorf("auth.login_url is required when SSO is disabled")
	}
	if !c.Auth.SSODisabled() {
		if err := c.OIDC.validate(); err != nil {
			return err
		}
	}

	switch c.Session.Backend {
	case "postgres", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis session backend")
		}
	default:
		return fmt.Errorf("session.backend %q is not supported", c.Session.Backend)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis rate_limit backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend %q is not supported", c.RateLimit.Backend)
	}
	if c.RateLimit.LoginAttempts < 1 || c.RateLimit.VerifyAttempts < 1 {
		return fmt.Errorf("rate_limit login_attempts and verify_attempts must be positive")
	}
	if c.TwoFactor.MaxAttempts < 1 {
		return fmt.Errorf("two_factor.max_attempts must be positive")
	}

	if c.Mail.Backend == "smtp" && c.Mail.SMTPHost == "" {
		return fmt.Errorf("mail.smtp_host is required for the smtp mail backend")
	}
	return nil
}

func (o OIDCConfig) validate() error {
	if o.ClientID == "" {
		return fmt.Errorf("oidc.client_id is required when SSO is enabled")
	}
	if o.Discovery {
		if o.Issuer == "" {
			return fmt.Errorf("oidc.issuer is required for discovery")
		}
	} else {
		for name, endpoint := range map[string]string{
			"authorization_endpoint": o.AuthorizationEndpoint,
			"token_endpoint":         o.TokenEndpoint,
			"jwks_endpoint":          o.JWKSEndpoint,
		} {
			if _, err := url.ParseRequestURI(endpoint); err != nil {
				return fmt.Errorf("oidc.%s must be an absolute URL: %w", name, err)
			}
		}
	}
	if o.RedirectURL == "" {
		return fmt.Errorf("oidc.redirect_url (or server.base_url) is required when SSO is enabled")
	}

	switch o.TokenAuthMethod {
	case TokenAuthClientSecretPost, TokenAuthClientSecretBasic:
	case TokenAuthPrivateKeyJWT:
		if o.ClientAssertionPrivateKey == "" {
			return fmt.Errorf("oidc.client_assertion_private_key is required for private_key_jwt")
		}
	default:
		return fmt.Errorf("oidc.token_auth_method %q is not supported", o.TokenAuthMethod)
	}

	if !slices.Contains([]string{ClaimsModeStrict, ClaimsModeRelaxed, ClaimsModeDebug}, o.ClaimsMode) {
		return fmt.Errorf("oidc.claims_mode %q is not supported", o.ClaimsMode)
	}
	return nil
}

// ensureSecrets auto-generates missing secrets on first boot.
func (c *Config) ensureSecrets() error {
	if c.Security.SessionSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate session secret: %w", err)
		}
		c.Security.SessionSecret = secret
		logBootstrapWarn(
			"auto-generated session_secret; set SECURITY_SESSION_SECRET so sessions survive restarts",
			zap.Int("length", len(secret)),
		)
	}
	if c.Security.EncryptionKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate encryption key: %w", err)
		}
		c.Security.EncryptionKey = key
		logBootstrapWarn(
			"auto-generated encryption_key; set SECURITY_ENCRYPTION_KEY for persistence",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "webcaf")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "webcaf")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Session
	v.SetDefault("session.backend", "postgres")
	v.SetDefault("session.lifetime", "12h")
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.cookie", "webcaf_session")
	v.SetDefault("session.secure", true)
	v.SetDefault("session.http_only", true)
	v.SetDefault("redis.key_prefix", "webcaf:session:")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 5)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.mail_pool_size", 10)

	// Gate
	v.SetDefault("auth.enabled_2fa", true)
	v.SetDefault("auth.sso_mode", SSOModeNone)
	v.SetDefault("auth.login_url", "/login/")
	v.SetDefault("auth.logout_redirect_url", "/")

	// OIDC
	v.SetDefault("oidc.discovery", false)
	v.SetDefault("oidc.scopes", "openid email profile")
	v.SetDefault("oidc.sign_algo", "RS256")
	v.SetDefault("oidc.token_auth_method", TokenAuthClientSecretPost)
	v.SetDefault("oidc.client_assertion_alg", "RS256")
	v.SetDefault("oidc.user_agent", "webcaf-oidc-client")
	v.SetDefault("oidc.http_timeout", "10s")
	v.SetDefault("oidc.claims_mode", ClaimsModeStrict)

	// Two factor
	v.SetDefault("two_factor.issuer", "WebCAF")
	v.SetDefault("two_factor.period", 300)
	v.SetDefault("two_factor.digits", 6)
	v.SetDefault("two_factor.skew", 1)
	v.SetDefault("two_factor.max_attempts", 5)
	v.SetDefault("two_factor.resend_cooldown", "60s")

	// Rate limits
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.key_prefix", "webcaf:ratelimit:")
	v.SetDefault("rate_limit.login_attempts", 10)
	v.SetDefault("rate_limit.login_window", "15m")
	v.SetDefault("rate_limit.verify_attempts", 20)
	v.SetDefault("rate_limit.verify_window", "15m")

	// Mail
	v.SetDefault("mail.backend", "log")
	v.SetDefault("mail.from", "no-reply@webcaf.gov.uk")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.rate_per_second", 5)
	v.SetDefault("mail.burst", 10)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Notifications
	v.SetDefault("notification.retention", "2160h")
	v.SetDefault("notification.reminder_window", "336h")
}
