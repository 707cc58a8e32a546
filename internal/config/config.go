package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName       = "GuildGate"
	defaultAppEnv        = "development"
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultShutdownDelay = 10 * time.Second

	defaultChallengeTTL   = 60 * time.Second
	defaultProofTTL       = 10 * time.Minute
	defaultPollInterval   = 2 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultStartRateLimit = 5

	defaultPlatformAPIURL = "https://discord.com/api/v10"
	defaultOAuthAuthURL   = "https://discord.com/api/oauth2/authorize"
	defaultOAuthTokenURL  = "https://discord.com/api/oauth2/token"
	defaultOAuthUserURL   = "https://discord.com/api/users/@me"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration

	// PublicBaseURL is the externally reachable root of the completion
	// channel; verification links are minted under it.
	PublicBaseURL string

	// Chat platform credentials. VerifiedRoleID is the privilege marker
	// applied to verified accounts; granting fails closed without it.
	PlatformAPIURL string
	PlatformToken  string
	VerifiedRoleID string

	// Identity authority (OAuth2) settings.
	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthUserURL      string

	ChallengeTTL   time.Duration
	ProofTTL       time.Duration
	PollInterval   time.Duration
	IdempotencyTTL time.Duration
	StartRateLimit int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,

		PublicBaseURL:  strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		PlatformAPIURL: strings.TrimSuffix(getEnv("PLATFORM_API_URL", defaultPlatformAPIURL), "/"),
		PlatformToken:  os.Getenv("PLATFORM_TOKEN"),
		VerifiedRoleID: os.Getenv("VERIFIED_ROLE_ID"),

		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthAuthURL:      getEnv("OAUTH_AUTH_URL", defaultOAuthAuthURL),
		OAuthTokenURL:     getEnv("OAUTH_TOKEN_URL", defaultOAuthTokenURL),
		OAuthUserURL:      getEnv("OAUTH_USER_URL", defaultOAuthUserURL),

		ChallengeTTL:   defaultChallengeTTL,
		ProofTTL:       defaultProofTTL,
		PollInterval:   defaultPollInterval,
		IdempotencyTTL: defaultIdempotencyTTL,
		StartRateLimit: defaultStartRateLimit,
	}

	var err error
	if cfg.ChallengeTTL, err = durationEnv("CHALLENGE_TTL", cfg.ChallengeTTL); err != nil {
		return Config{}, err
	}
	if cfg.ProofTTL, err = durationEnv("PROOF_TTL", cfg.ProofTTL); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("START_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid START_RATE_LIMIT: %w", err)
		}
		cfg.StartRateLimit = n
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.PlatformToken == "" {
			return Config{}, fmt.Errorf("PLATFORM_TOKEN must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.VerifiedRoleID == "" {
			return Config{}, fmt.Errorf("VERIFIED_ROLE_ID must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.OAuthClientID == "" || cfg.OAuthClientSecret == "" {
			return Config{}, fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment, where
// external backends may be replaced by in-memory fakes.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// RedirectURL returns the OAuth2 callback URL registered with the authority.
func (c Config) RedirectURL() string {
	return c.PublicBaseURL + "/callback"
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
