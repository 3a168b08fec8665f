package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STARWISE_AUTH_SIGNING_SECRET", "secret")
	t.Setenv("STARWISE_GITHUB_CLIENT_ID", "client-id")
	t.Setenv("STARWISE_GITHUB_CLIENT_SECRET", "client-secret")
	t.Setenv("STARWISE_AI_API_KEY", "ai-key")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8000" || cfg.DatabasePath != "starwise.db" {
		t.Fatalf("unexpected server defaults %#v", cfg)
	}
	if cfg.CookieName != "session_token" || cfg.CookieSecure {
		t.Fatalf("unexpected cookie defaults %#v", cfg)
	}
	if cfg.TokenTTL() != 7*24*time.Hour {
		t.Fatalf("unexpected ttl %s", cfg.TokenTTL())
	}
	if cfg.GitHubMaxStarPages != 50 || cfg.GitHubPageSize != 100 {
		t.Fatalf("unexpected pagination defaults %#v", cfg)
	}
	if cfg.AIModel != "gemini-1.5-flash" || !strings.HasPrefix(cfg.AIBaseURL, "https://generativelanguage.googleapis.com/") {
		t.Fatalf("unexpected ai defaults %#v", cfg)
	}
	if cfg.ClientOrigin != "http://localhost:3000" {
		t.Fatalf("unexpected client origin %q", cfg.ClientOrigin)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STARWISE_AUTH_TOKEN_TTL_MINUTES", "15")
	t.Setenv("STARWISE_GITHUB_API_URL", "http://127.0.0.1:9999")
	t.Setenv("STARWISE_CLIENT_ORIGIN", "https://stars.example.com/")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.TokenTTL() != 15*time.Minute {
		t.Fatalf("unexpected ttl %s", cfg.TokenTTL())
	}
	if cfg.GitHubAPIURL != "http://127.0.0.1:9999" {
		t.Fatalf("unexpected api url %q", cfg.GitHubAPIURL)
	}
	if cfg.ClientOrigin != "https://stars.example.com" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.ClientOrigin)
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	cases := map[string]string{
		"STARWISE_AUTH_SIGNING_SECRET":  "auth.signing_secret",
		"STARWISE_GITHUB_CLIENT_ID":     "github.client_id",
		"STARWISE_GITHUB_CLIENT_SECRET": "github.client_secret",
		"STARWISE_AI_API_KEY":           "ai.api_key",
	}
	for env, key := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(env, "")
			_, err := Load(NewViper())
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("STARWISE_AUTH_TOKEN_TTL_MINUTES", "0")
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected ttl validation error")
	}
}
