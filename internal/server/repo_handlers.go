package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/github"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/repos"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"github.com/MarcoPoloResearchLab/starwise/backend/internal/suggest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type tagPayload struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type repositoryPayload struct {
	ID          uint         `json:"id"`
	GitHubID    int64        `json:"github_id"`
	Name        string       `json:"name"`
	FullName    string       `json:"full_name"`
	Description *string      `json:"description"`
	URL         string       `json:"url"`
	Language    *string      `json:"language"`
	Stars       int          `json:"stars"`
	OwnerID     uint         `json:"owner_id"`
	Tags        []tagPayload `json:"tags"`
}

type repositoryPagePayload struct {
	Repos       []repositoryPayload `json:"repos"`
	TotalPages  int64               `json:"total_pages"`
	CurrentPage int                 `json:"current_page"`
}

type syncResponsePayload struct {
	repos.SyncResult
	Truncated bool `json:"truncated"`
}

type tagUsagePayload struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	RepositoryCount int64  `json:"repository_count"`
}

func (h *httpHandler) handleListStarred(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sort := store.RepositorySort(strings.TrimSpace(c.Query("sort")))
	switch sort {
	case store.SortByID, store.SortByNameAsc, store.SortByStarsDesc:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sort"})
		return
	}
	query := repos.ListQuery{
		Search:   c.Query("q"),
		Language: c.Query("language"),
		Sort:     sort,
	}

	rawPage, pageGiven := c.GetQuery("page")
	rawLimit, limitGiven := c.GetQuery("limit")
	paged := pageGiven || limitGiven
	page, limit := 1, repos.MaxPageSize
	if paged {
		var valid bool
		if page, valid = positiveInt(rawPage, pageGiven, 1); !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
			return
		}
		if limit, valid = positiveInt(rawLimit, limitGiven, repos.MaxPageSize); !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		if limit > repos.MaxPageSize {
			limit = repos.MaxPageSize
		}
		if page-1 > math.MaxInt/limit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
			return
		}
		query.Limit = limit
		query.Offset = (page - 1) * limit
	}

	repositories, total, err := h.repositories.List(c.Request.Context(), user.ID, query)
	if err != nil {
		h.writeError(c, "list_failed", err)
		return
	}

	payload := make([]repositoryPayload, 0, len(repositories))
	for index := range repositories {
		payload = append(payload, toRepositoryPayload(&repositories[index]))
	}
	if !paged {
		c.JSON(http.StatusOK, payload)
		return
	}
	c.JSON(http.StatusOK, repositoryPagePayload{
		Repos:       payload,
		TotalPages:  (total + int64(limit) - 1) / int64(limit),
		CurrentPage: page,
	})
}

func (h *httpHandler) handleLanguages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	languages, err := h.repositories.Languages(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, "languages_failed", err)
		return
	}
	c.JSON(http.StatusOK, languages)
}

func (h *httpHandler) handleSync(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	result, truncated, err := h.syncStarred(c, user)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, syncResponsePayload{SyncResult: result, Truncated: truncated})
}

// syncStarred fetches the user's stars and reconciles them. A truncated fetch is applied without
// deleting, since rows past the page bound may still be starred. Errors are already written to c.
func (h *httpHandler) syncStarred(c *gin.Context, user *store.User) (repos.SyncResult, bool, error) {
	ctx := c.Request.Context()

	records, err := h.github.FetchAllStarred(ctx, user.AccessToken)
	truncated := errors.Is(err, github.ErrFetchTruncated)
	if err != nil && !truncated {
		h.writeError(c, "starred_fetch_failed", err)
		return repos.SyncResult{}, false, err
	}

	apply := h.repositories.Sync
	if truncated {
		h.logger.Warn("syncing partial starred list", zap.Uint("user_id", user.ID), zap.Int("records", len(records)), zap.Error(err))
		apply = h.repositories.SyncPartial
	}
	result, err := apply(ctx, user.ID, records)
	if err != nil {
		h.writeError(c, "sync_failed", err)
		return repos.SyncResult{}, false, err
	}
	return result, truncated, nil
}

func (h *httpHandler) handleSetTags(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repositoryID, ok := repositoryIDParam(c)
	if !ok {
		return
	}

	var names []string
	if err := c.ShouldBindJSON(&names); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	repository, err := h.repositories.SetTags(c.Request.Context(), repositoryID, user.ID, names)
	if err != nil {
		h.writeError(c, "set_tags_failed", err)
		return
	}
	c.JSON(http.StatusOK, toRepositoryPayload(repository))
}

func (h *httpHandler) handleSuggestTags(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repositoryID, ok := repositoryIDParam(c)
	if !ok {
		return
	}

	repository, err := h.repositories.Get(c.Request.Context(), repositoryID, user.ID)
	if err != nil {
		h.writeError(c, "repository_lookup_failed", err)
		return
	}
	tags, err := h.suggester.SuggestTags(c.Request.Context(), suggest.RepositoryMetadata{
		Name:        repository.Name,
		FullName:    repository.FullName,
		Description: repository.Description,
		Language:    repository.Language,
	})
	if err != nil {
		h.writeError(c, "suggestion_failed", err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (h *httpHandler) handleListTags(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	usages, err := h.repositories.Tags(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, "tags_failed", err)
		return
	}
	payload := make([]tagUsagePayload, 0, len(usages))
	for _, usage := range usages {
		payload = append(payload, tagUsagePayload{ID: usage.ID, Name: usage.Name, RepositoryCount: usage.RepositoryCount})
	}
	c.JSON(http.StatusOK, payload)
}

func repositoryIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_repository_id"})
		return 0, false
	}
	return uint(id), true
}

func positiveInt(raw string, given bool, fallback int) (int, bool) {
	if !given || strings.TrimSpace(raw) == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}

func toRepositoryPayload(repository *store.Repository) repositoryPayload {
	tags := make([]tagPayload, 0, len(repository.Tags))
	for _, tag := range repository.Tags {
		tags = append(tags, tagPayload{ID: tag.ID, Name: tag.Name})
	}
	return repositoryPayload{
		ID:          repository.ID,
		GitHubID:    repository.GitHubID,
		Name:        repository.Name,
		FullName:    repository.FullName,
		Description: repository.Description,
		URL:         repository.URL,
		Language:    repository.Language,
		Stars:       repository.Stars,
		OwnerID:     repository.OwnerID,
		Tags:        tags,
	}
}
