package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/repos"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/users"
	gh "github.com/google/go-github/v51/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const (
	defaultMaxPages = 50
	defaultPageSize = 100
	maxPageSize     = 100
)

// Scopes requested at the authorize step.
var Scopes = []string{"repo", "read:user"}

var (
	// ErrUpstreamAuth reports a rejected code exchange or credential.
	ErrUpstreamAuth = errors.New("github: upstream authentication failed")
	// ErrFetchTruncated reports that the page bound was reached before an empty page.
	ErrFetchTruncated = errors.New("github: starred fetch truncated")

	errMissingClientID     = errors.New("github: client id is required")
	errMissingClientSecret = errors.New("github: client secret is required")
	errMissingCode         = errors.New("github: authorization code is required")
	errMissingToken        = errors.New("github: access token is required")
)

// Config describes the OAuth application and API endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// OAuthBaseURL overrides https://github.com for the authorize and token endpoints.
	OAuthBaseURL string
	// APIBaseURL overrides https://api.github.com/.
	APIBaseURL string
	MaxPages   int
	PageSize   int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to GitHub on behalf of one OAuth application.
type Client struct {
	oauth      *oauth2.Config
	apiBaseURL *url.URL
	maxPages   int
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates the configuration.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errMissingClientID
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errMissingClientSecret
	}

	endpoint := githuboauth.Endpoint
	if base := strings.TrimRight(strings.TrimSpace(cfg.OAuthBaseURL), "/"); base != "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/login/oauth/authorize",
			TokenURL: base + "/login/oauth/access_token",
		}
	}

	var apiBaseURL *url.URL
	if raw := strings.TrimSpace(cfg.APIBaseURL); raw != "" {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("github: invalid api base url: %w", err)
		}
		apiBaseURL = parsed
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		apiBaseURL: apiBaseURL,
		maxPages:   maxPages,
		pageSize:   pageSize,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// AuthorizeURL builds the provider redirect carrying state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: %v", ErrUpstreamAuth, errMissingCode)
	}
	token, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstreamAuth, upstreamMessage(err))
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUpstreamAuth)
	}
	return token.AccessToken, nil
}

// FetchProfile returns the identity behind accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (users.Profile, error) {
	api, err := c.api(ctx, accessToken)
	if err != nil {
		return users.Profile{}, err
	}
	user, _, err := api.Users.Get(ctx, "")
	if err != nil {
		return users.Profile{}, fmt.Errorf("%w: %s", ErrUpstreamAuth, upstreamMessage(err))
	}
	if user.GetID() == 0 || user.GetLogin() == "" {
		return users.Profile{}, fmt.Errorf("%w: incomplete profile", ErrUpstreamAuth)
	}
	return users.Profile{
		GitHubID:  user.GetID(),
		Username:  user.GetLogin(),
		AvatarURL: user.AvatarURL,
	}, nil
}

// FetchAllStarred pages through the starred list until an empty page.
// When the page bound is reached first, the records gathered so far are returned
// together with an error wrapping ErrFetchTruncated.
func (c *Client) FetchAllStarred(ctx context.Context, accessToken string) ([]repos.RemoteRepository, error) {
	api, err := c.api(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	records := []repos.RemoteRepository{}
	for page := 1; page <= c.maxPages; page++ {
		starred, _, err := api.Activity.ListStarred(ctx, "", &gh.ActivityListStarredOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: c.pageSize},
		})
		if err != nil {
			if isAuthFailure(err) {
				return nil, fmt.Errorf("%w: %s", ErrUpstreamAuth, upstreamMessage(err))
			}
			return nil, fmt.Errorf("github: list starred page %d: %w", page, err)
		}
		if len(starred) == 0 {
			return records, nil
		}
		for _, entry := range starred {
			if repository := entry.GetRepository(); repository != nil {
				records = append(records, toRemote(repository))
			}
		}
	}

	c.logger.Warn("starred fetch truncated",
		zap.Int("max_pages", c.maxPages),
		zap.Int("page_size", c.pageSize),
		zap.Int("records", len(records)),
	)
	return records, fmt.Errorf("%w: stopped after %d pages", ErrFetchTruncated, c.maxPages)
}

func (c *Client) api(ctx context.Context, accessToken string) (*gh.Client, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamAuth, errMissingToken)
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	api := gh.NewClient(oauth2.NewClient(c.withHTTPClient(ctx), source))
	if c.apiBaseURL != nil {
		api.BaseURL = c.apiBaseURL
	}
	return api, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toRemote(repository *gh.Repository) repos.RemoteRepository {
	return repos.RemoteRepository{
		GitHubID:    repository.GetID(),
		Name:        repository.GetName(),
		FullName:    repository.GetFullName(),
		Description: repository.Description,
		URL:         repository.GetHTMLURL(),
		Language:    repository.Language,
		Stars:       repository.GetStargazersCount(),
	}
}

func isAuthFailure(err error) bool {
	var responseErr *gh.ErrorResponse
	if errors.As(err, &responseErr) && responseErr.Response != nil {
		status := responseErr.Response.StatusCode
		return status == http.StatusUnauthorized || status == http.StatusForbidden
	}
	return false
}

func upstreamMessage(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
	}
	var responseErr *gh.ErrorResponse
	if errors.As(err, &responseErr) && responseErr.Message != "" {
		return responseErr.Message
	}
	return err.Error()
}
