package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/config"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/database"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/github"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/repos"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/server"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/suggest"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "starwise-api",
		Short: "Starwise starred-repository backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session lifetime in minutes")
	flags.String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	flags.Bool("cookie-secure", defaults.GetBool("auth.cookie_secure"), "Mark cookies Secure")
	flags.String("github-client-id", "", "GitHub OAuth client ID")
	flags.String("github-client-secret", "", "GitHub OAuth client secret")
	flags.String("github-redirect-url", "", "GitHub OAuth redirect URL override")
	flags.String("github-oauth-url", "", "GitHub OAuth base URL override")
	flags.String("github-api-url", "", "GitHub API base URL override")
	flags.Int("github-max-star-pages", defaults.GetInt("github.max_star_pages"), "Upper bound on starred pages fetched per sync")
	flags.Int("github-page-size", defaults.GetInt("github.page_size"), "Starred repositories per page")
	flags.String("ai-api-key", "", "AI provider API key")
	flags.String("ai-base-url", defaults.GetString("ai.base_url"), "OpenAI-compatible API base URL")
	flags.String("ai-model", defaults.GetString("ai.model"), "Model used for tag suggestions")
	flags.Int("ai-timeout-seconds", defaults.GetInt("ai.timeout_seconds"), "Timeout for one suggestion call")
	flags.String("client-origin", defaults.GetString("client.origin"), "Frontend origin for redirects and CORS")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "auth.cookie_secure", "cookie-secure")
	bindFlag(cmd, "github.client_id", "github-client-id")
	bindFlag(cmd, "github.client_secret", "github-client-secret")
	bindFlag(cmd, "github.redirect_url", "github-redirect-url")
	bindFlag(cmd, "github.oauth_url", "github-oauth-url")
	bindFlag(cmd, "github.api_url", "github-api-url")
	bindFlag(cmd, "github.max_star_pages", "github-max-star-pages")
	bindFlag(cmd, "github.page_size", "github-page-size")
	bindFlag(cmd, "ai.api_key", "ai-api-key")
	bindFlag(cmd, "ai.base_url", "ai-base-url")
	bindFlag(cmd, "ai.model", "ai-model")
	bindFlag(cmd, "ai.timeout_seconds", "ai-timeout-seconds")
	bindFlag(cmd, "client.origin", "client-origin")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	handler, err := newHandler(appConfig, db, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newHandler(appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (http.Handler, error) {
	dataStore, err := store.New(db)
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionCodec(auth.SessionCodecConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL(),
	})
	if err != nil {
		return nil, err
	}
	userService, err := users.NewService(users.ServiceConfig{Store: dataStore, Logger: logger})
	if err != nil {
		return nil, err
	}
	gate, err := auth.NewGate(auth.GateConfig{
		Verifier:   sessions,
		Users:      userService,
		CookieName: appConfig.CookieName,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	githubClient, err := github.NewClient(github.Config{
		ClientID:     appConfig.GitHubClientID,
		ClientSecret: appConfig.GitHubClientSecret,
		RedirectURL:  appConfig.GitHubRedirectURL,
		OAuthBaseURL: appConfig.GitHubOAuthURL,
		APIBaseURL:   appConfig.GitHubAPIURL,
		MaxPages:     appConfig.GitHubMaxStarPages,
		PageSize:     appConfig.GitHubPageSize,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	suggester, err := suggest.NewClient(suggest.Config{
		APIKey:  appConfig.AIAPIKey,
		BaseURL: appConfig.AIBaseURL,
		Model:   appConfig.AIModel,
		Timeout: appConfig.AITimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	repoService, err := repos.NewService(repos.ServiceConfig{Store: dataStore, Logger: logger})
	if err != nil {
		return nil, err
	}

	return server.NewHTTPHandler(server.Dependencies{
		Sessions:     sessions,
		Gate:         gate,
		GitHub:       githubClient,
		Users:        userService,
		Repositories: repoService,
		Suggester:    suggester,
		States:       auth.NewUUIDStateGenerator(),
		CookieName:   appConfig.CookieName,
		CookieSecure: appConfig.CookieSecure,
		ClientOrigin: appConfig.ClientOrigin,
		Logger:       logger,
	})
}
