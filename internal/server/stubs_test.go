package server

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/repos"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/suggest"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testClientOrigin = "https://stars.example.com"
	testCookieName   = "session_token"
	testSessionToken = "session-for-7"
)

type stubSessions struct {
	ttl     time.Duration
	issued  []uint
	failure error
}

func (s *stubSessions) Issue(userID uint) (string, time.Time, error) {
	if s.failure != nil {
		return "", time.Time{}, s.failure
	}
	s.issued = append(s.issued, userID)
	return "issued-for-user", time.Now().Add(s.ttl), nil
}

func (s *stubSessions) TTL() time.Duration {
	return s.ttl
}

type stubGate struct {
	users map[string]*store.User
	err   error
}

func (g *stubGate) ResolveRequest(r *http.Request) (*store.User, error) {
	if g.err != nil {
		return nil, g.err
	}
	cookie, err := r.Cookie(testCookieName)
	if err != nil {
		return nil, auth.ErrUnauthenticated
	}
	user, ok := g.users[cookie.Value]
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return user, nil
}

type stubGitHub struct {
	exchangeErr error
	profile     users.Profile
	profileErr  error
	starred     []repos.RemoteRepository
	starredErr  error
	codes       []string
	tokens      []string
}

func (g *stubGitHub) AuthorizeURL(state string) string {
	return "https://github.example.com/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (g *stubGitHub) ExchangeCode(_ context.Context, code string) (string, error) {
	g.codes = append(g.codes, code)
	if g.exchangeErr != nil {
		return "", g.exchangeErr
	}
	return "gho_" + code, nil
}

func (g *stubGitHub) FetchProfile(_ context.Context, accessToken string) (users.Profile, error) {
	if g.profileErr != nil {
		return users.Profile{}, g.profileErr
	}
	return g.profile, nil
}

func (g *stubGitHub) FetchAllStarred(_ context.Context, accessToken string) ([]repos.RemoteRepository, error) {
	g.tokens = append(g.tokens, accessToken)
	return g.starred, g.starredErr
}

type stubUsers struct {
	user *store.User
	err  error
}

func (u *stubUsers) Upsert(_ context.Context, profile users.Profile, accessToken string) (*store.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	user := *u.user
	user.AccessToken = accessToken
	return &user, nil
}

type syncCall struct {
	ownerID uint
	records []repos.RemoteRepository
	partial bool
}

type stubRepositories struct {
	mu          sync.Mutex
	syncCalls   []syncCall
	syncResult  repos.SyncResult
	syncErr     error
	tagCalls    [][]string
	setTagsErr  error
	repository  *store.Repository
	getErr      error
	listed      []store.Repository
	total       int64
	lastQuery   repos.ListQuery
	languages   []string
	tagUsages   []store.TagUsage
	queryFailed error
}

func (r *stubRepositories) Sync(_ context.Context, ownerID uint, records []repos.RemoteRepository) (repos.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncCalls = append(r.syncCalls, syncCall{ownerID: ownerID, records: records})
	return r.syncResult, r.syncErr
}

func (r *stubRepositories) SyncPartial(_ context.Context, ownerID uint, records []repos.RemoteRepository) (repos.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncCalls = append(r.syncCalls, syncCall{ownerID: ownerID, records: records, partial: true})
	return r.syncResult, r.syncErr
}

func (r *stubRepositories) SetTags(_ context.Context, repositoryID, ownerID uint, names []string) (*store.Repository, error) {
	r.tagCalls = append(r.tagCalls, names)
	if r.setTagsErr != nil {
		return nil, r.setTagsErr
	}
	updated := *r.repository
	updated.Tags = nil
	for index, name := range names {
		updated.Tags = append(updated.Tags, store.Tag{ID: uint(index + 1), Name: name})
	}
	return &updated, nil
}

func (r *stubRepositories) Get(_ context.Context, repositoryID, ownerID uint) (*store.Repository, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.repository, nil
}

func (r *stubRepositories) List(_ context.Context, ownerID uint, query repos.ListQuery) ([]store.Repository, int64, error) {
	r.lastQuery = query
	if r.queryFailed != nil {
		return nil, 0, r.queryFailed
	}
	return r.listed, r.total, nil
}

func (r *stubRepositories) Languages(_ context.Context, ownerID uint) ([]string, error) {
	return r.languages, r.queryFailed
}

func (r *stubRepositories) Tags(_ context.Context, ownerID uint) ([]store.TagUsage, error) {
	return r.tagUsages, r.queryFailed
}

type stubSuggester struct {
	tags     []string
	err      error
	metadata []suggest.RepositoryMetadata
}

func (s *stubSuggester) SuggestTags(_ context.Context, metadata suggest.RepositoryMetadata) ([]string, error) {
	s.metadata = append(s.metadata, metadata)
	return s.tags, s.err
}

type fixedStates struct {
	value string
}

func (f fixedStates) NewState() (string, error) {
	return f.value, nil
}

type testServer struct {
	handler      http.Handler
	sessions     *stubSessions
	gate         *stubGate
	github       *stubGitHub
	users        *stubUsers
	repositories *stubRepositories
	suggester    *stubSuggester
	logs         *observer.ObservedLogs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	member := &store.User{ID: 7, GitHubID: 583231, Username: "octocat", AccessToken: "gho_stored"}
	language := "Go"
	server := &testServer{
		sessions: &stubSessions{ttl: 7 * 24 * time.Hour},
		gate:     &stubGate{users: map[string]*store.User{testSessionToken: member}},
		github: &stubGitHub{
			profile: users.Profile{GitHubID: 583231, Username: "octocat"},
			starred: []repos.RemoteRepository{{GitHubID: 1, Name: "gin", FullName: "gin-gonic/gin", URL: "https://github.com/gin-gonic/gin", Stars: 10}},
		},
		users: &stubUsers{user: member},
		repositories: &stubRepositories{
			repository: &store.Repository{ID: 11, GitHubID: 1, Name: "gin", FullName: "gin-gonic/gin", Language: &language, OwnerID: 7},
		},
		suggester: &stubSuggester{tags: []string{"web-framework", "http", "golang"}},
	}
	core, logs := observer.New(zap.DebugLevel)
	server.logs = logs

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:     server.sessions,
		Gate:         server.gate,
		GitHub:       server.github,
		Users:        server.users,
		Repositories: server.repositories,
		Suggester:    server.suggester,
		States:       fixedStates{value: "state-abc"},
		CookieName:   testCookieName,
		ClientOrigin: testClientOrigin + "/",
		Logger:       zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server.handler = handler
	return server
}
