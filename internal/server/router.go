package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/repos"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/suggest"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const currentUserContextKey = "starwise_user"

var (
	errMissingSessionIssuer = errors.New("session issuer dependency required")
	errMissingSessionGate   = errors.New("session gate dependency required")
	errMissingGitHubClient  = errors.New("github client dependency required")
	errMissingUserService   = errors.New("user service dependency required")
	errMissingRepoService   = errors.New("repository service dependency required")
	errMissingSuggester     = errors.New("tag suggester dependency required")
	errMissingStates        = errors.New("state generator dependency required")
	errMissingCookieName    = errors.New("session cookie name required")
	errMissingClientOrigin  = errors.New("client origin required")
)

// SessionIssuer mints session tokens.
type SessionIssuer interface {
	Issue(userID uint) (string, time.Time, error)
	TTL() time.Duration
}

// SessionGate resolves the session cookie of a request to its user.
type SessionGate interface {
	ResolveRequest(r *http.Request) (*store.User, error)
}

// GitHubClient is the OAuth and API surface used by the handlers.
type GitHubClient interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (users.Profile, error)
	FetchAllStarred(ctx context.Context, accessToken string) ([]repos.RemoteRepository, error)
}

// UserService upserts users at login.
type UserService interface {
	Upsert(ctx context.Context, profile users.Profile, accessToken string) (*store.User, error)
}

// RepositoryService reconciles, lists and tags repositories.
type RepositoryService interface {
	Sync(ctx context.Context, ownerID uint, records []repos.RemoteRepository) (repos.SyncResult, error)
	SyncPartial(ctx context.Context, ownerID uint, records []repos.RemoteRepository) (repos.SyncResult, error)
	SetTags(ctx context.Context, repositoryID, ownerID uint, names []string) (*store.Repository, error)
	Get(ctx context.Context, repositoryID, ownerID uint) (*store.Repository, error)
	List(ctx context.Context, ownerID uint, query repos.ListQuery) ([]store.Repository, int64, error)
	Languages(ctx context.Context, ownerID uint) ([]string, error)
	Tags(ctx context.Context, ownerID uint) ([]store.TagUsage, error)
}

// TagSuggester asks the AI model for tags.
type TagSuggester interface {
	SuggestTags(ctx context.Context, metadata suggest.RepositoryMetadata) ([]string, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Sessions     SessionIssuer
	Gate         SessionGate
	GitHub       GitHubClient
	Users        UserService
	Repositories RepositoryService
	Suggester    TagSuggester
	States       auth.StateGenerator
	CookieName   string
	CookieSecure bool
	ClientOrigin string
	Logger       *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.Gate == nil {
		return nil, errMissingSessionGate
	}
	if deps.GitHub == nil {
		return nil, errMissingGitHubClient
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Repositories == nil {
		return nil, errMissingRepoService
	}
	if deps.Suggester == nil {
		return nil, errMissingSuggester
	}
	if deps.States == nil {
		return nil, errMissingStates
	}
	if strings.TrimSpace(deps.CookieName) == "" {
		return nil, errMissingCookieName
	}
	clientOrigin := strings.TrimRight(strings.TrimSpace(deps.ClientOrigin), "/")
	if clientOrigin == "" {
		return nil, errMissingClientOrigin
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware(clientOrigin))

	handler := &httpHandler{
		sessions:     deps.Sessions,
		gate:         deps.Gate,
		github:       deps.GitHub,
		users:        deps.Users,
		repositories: deps.Repositories,
		suggester:    deps.Suggester,
		states:       deps.States,
		cookieName:   deps.CookieName,
		cookieSecure: deps.CookieSecure,
		clientOrigin: clientOrigin,
		logger:       logger,
	}

	api := router.Group("/api")
	api.GET("/auth/login/github", handler.handleLogin)
	api.GET("/auth/callback/github", handler.handleCallback)
	api.POST("/auth/logout", handler.handleLogout)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)
	protected.GET("/repos/starred", handler.handleListStarred)
	protected.GET("/repos/languages", handler.handleLanguages)
	protected.POST("/repos/sync", handler.handleSync)
	protected.POST("/repos/:id/tags", handler.handleSetTags)
	protected.POST("/repos/:id/suggest-tags", handler.handleSuggestTags)
	protected.GET("/tags", handler.handleListTags)

	return router, nil
}

type httpHandler struct {
	sessions     SessionIssuer
	gate         SessionGate
	github       GitHubClient
	users        UserService
	repositories RepositoryService
	suggester    TagSuggester
	states       auth.StateGenerator
	cookieName   string
	cookieSecure bool
	clientOrigin string
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	user, err := h.gate.ResolveRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			h.logger.Error("session resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session_lookup_failed"})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(currentUserContextKey, user)
	c.Next()
}

// corsMiddleware admits the single client origin with credentials so the session cookie travels.
func corsMiddleware(origin string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{origin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func currentUser(c *gin.Context) (*store.User, bool) {
	value, ok := c.Get(currentUserContextKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*store.User)
	return user, ok && user != nil
}
