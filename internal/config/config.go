package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "STARWISE"
	defaultHTTPAddress      = "0.0.0.0:8000"
	defaultDatabasePath     = "starwise.db"
	defaultLogLevel         = "info"
	defaultTokenTTLMinutes  = 7 * 24 * 60
	defaultCookieName       = "session_token"
	defaultMaxStarPages     = 50
	defaultStarPageSize     = 100
	defaultAIBaseURL        = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultAIModel          = "gemini-1.5-flash"
	defaultClientOrigin     = "http://localhost:3000"
	defaultAITimeoutSeconds = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	SigningSecret   string
	TokenTTLMinutes int
	CookieName      string
	CookieSecure    bool

	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	GitHubOAuthURL     string
	GitHubAPIURL       string
	GitHubMaxStarPages int
	GitHubPageSize     int

	AIAPIKey         string
	AIBaseURL        string
	AIModel          string
	AITimeoutSeconds int

	ClientOrigin string
}

// TokenTTL returns the session lifetime.
func (c AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// AITimeout bounds one suggestion call.
func (c AppConfig) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.cookie_secure", false)
	configViper.SetDefault("github.max_star_pages", defaultMaxStarPages)
	configViper.SetDefault("github.page_size", defaultStarPageSize)
	configViper.SetDefault("ai.base_url", defaultAIBaseURL)
	configViper.SetDefault("ai.model", defaultAIModel)
	configViper.SetDefault("ai.timeout_seconds", defaultAITimeoutSeconds)
	configViper.SetDefault("client.origin", defaultClientOrigin)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"auth.signing_secret",
		"github.client_id",
		"github.client_secret",
		"github.redirect_url",
		"github.oauth_url",
		"github.api_url",
		"ai.api_key",
	} {
		_ = configViper.BindEnv(key)
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),

		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenTTLMinutes: configViper.GetInt("auth.token_ttl_minutes"),
		CookieName:      configViper.GetString("auth.cookie_name"),
		CookieSecure:    configViper.GetBool("auth.cookie_secure"),

		GitHubClientID:     configViper.GetString("github.client_id"),
		GitHubClientSecret: configViper.GetString("github.client_secret"),
		GitHubRedirectURL:  configViper.GetString("github.redirect_url"),
		GitHubOAuthURL:     configViper.GetString("github.oauth_url"),
		GitHubAPIURL:       configViper.GetString("github.api_url"),
		GitHubMaxStarPages: configViper.GetInt("github.max_star_pages"),
		GitHubPageSize:     configViper.GetInt("github.page_size"),

		AIAPIKey:         configViper.GetString("ai.api_key"),
		AIBaseURL:        configViper.GetString("ai.base_url"),
		AIModel:          configViper.GetString("ai.model"),
		AITimeoutSeconds: configViper.GetInt("ai.timeout_seconds"),

		ClientOrigin: strings.TrimRight(configViper.GetString("client.origin"), "/"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GitHubClientID) == "" {
		return fmt.Errorf("github.client_id is required")
	}
	if strings.TrimSpace(c.GitHubClientSecret) == "" {
		return fmt.Errorf("github.client_secret is required")
	}
	if c.GitHubMaxStarPages <= 0 {
		return fmt.Errorf("github.max_star_pages must be positive")
	}
	if c.GitHubPageSize <= 0 || c.GitHubPageSize > 100 {
		return fmt.Errorf("github.page_size must be between 1 and 100")
	}
	if strings.TrimSpace(c.AIAPIKey) == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	origin, err := url.Parse(c.ClientOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("client.origin must be an absolute url")
	}
	return nil
}
