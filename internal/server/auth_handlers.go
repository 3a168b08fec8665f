package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	stateCookieName   = "oauth_state"
	stateCookiePath   = "/api/auth"
	stateCookieMaxAge = 10 * 60
)

type userPayload struct {
	ID        uint    `json:"id"`
	GitHubID  int64   `json:"github_id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	state, err := h.states.NewState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state_generation_failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, stateCookieMaxAge, stateCookiePath, "", h.cookieSecure, true)
	c.Redirect(http.StatusSeeOther, h.github.AuthorizeURL(state))
}

func (h *httpHandler) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	expectedState, _ := c.Cookie(stateCookieName)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, "", -1, stateCookiePath, "", h.cookieSecure, true)

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_code"})
		return
	}
	state := c.Query("state")
	if expectedState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expectedState)) != 1 {
		h.logger.Warn("oauth state mismatch", zap.Bool("state_cookie_present", expectedState != ""))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state"})
		return
	}

	accessToken, err := h.github.ExchangeCode(ctx, code)
	if err != nil {
		h.writeError(c, "oauth_exchange_failed", err)
		return
	}
	profile, err := h.github.FetchProfile(ctx, accessToken)
	if err != nil {
		h.writeError(c, "profile_fetch_failed", err)
		return
	}
	user, err := h.users.Upsert(ctx, profile, accessToken)
	if err != nil {
		h.writeError(c, "user_upsert_failed", err)
		return
	}

	if _, _, err := h.syncStarred(c, user); err != nil {
		return
	}

	token, _, err := h.sessions.Issue(user.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.sessions.TTL().Seconds()), "/", "", h.cookieSecure, true)
	c.Redirect(http.StatusSeeOther, h.clientOrigin)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, userPayload{
		ID:        user.ID,
		GitHubID:  user.GitHubID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
