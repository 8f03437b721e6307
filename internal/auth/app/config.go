package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loxleyhq/authcore/pkg/jwtx"
)

type Config struct {
	Issuer   string // issuer claim for minted tokens
	Audience string // audience claim for minted tokens

	AccessSecret  string        // Required: HS256 secret for access tokens
	RefreshSecret string        // Required: HS256 secret for refresh tokens
	AccessTTL     time.Duration // Access token lifetime (default: 1h)
	RefreshTTL    time.Duration // Refresh token lifetime (default: 168h)

	OAuthProviderName  string // Provider label (default: oidc)
	OAuthIssuerURL     string // Provider base URL hosting the discovery document
	OAuthClientID      string
	OAuthClientSecret  string
	OAuthRedirectURI   string
	OAuthScopes        []string // Space-separated in env (default: openid email profile)

	DatabaseFile         string        // SQLite database file (default: ./auth.db)
	PepperFile           string        // Password pepper file (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-state sweep interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:   getEnvOrDefault("AUTH_ISSUER", "authcore"),
		Audience: getEnvOrDefault("AUTH_AUDIENCE", "authcore"),

		AccessSecret:  os.Getenv("AUTH_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("AUTH_REFRESH_SECRET"),
		AccessTTL:     getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		OAuthProviderName: getEnvOrDefault("OAUTH_PROVIDER_NAME", "oidc"),
		OAuthIssuerURL:    os.Getenv("OAUTH_ISSUER_URL"),
		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthRedirectURI:  os.Getenv("OAUTH_REDIRECT_URI"),
		OAuthScopes:       strings.Fields(getEnvOrDefault("OAUTH_SCOPES", "openid email profile")),

		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate rejects configurations the server cannot safely start with.
func (c Config) Validate() error {
	if len(c.AccessSecret) < jwtx.MinSecretLength {
		return errors.New("AUTH_ACCESS_SECRET must be at least 32 bytes")
	}
	if len(c.RefreshSecret) < jwtx.MinSecretLength {
		return errors.New("AUTH_REFRESH_SECRET must be at least 32 bytes")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	return nil
}

// FederationConfigured reports whether an upstream provider is set up.
func (c Config) FederationConfigured() bool {
	return c.OAuthIssuerURL != "" && c.OAuthClientID != "" && c.OAuthRedirectURI != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
