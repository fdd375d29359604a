package handler

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/workspace"
)

const (
	workspaceSessionKey = "workspace_id"
	workspaceContextKey = "workspace"

	csrfSessionKey = "csrf_token"
	csrfContextKey = "csrf_token"
	csrfFormKey    = "_csrf"
	csrfHeaderKey  = "X-CSRF-Token"
)

// RequestLogger logs every request through logrus; successful ones at debug level
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    status,
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("Server error")
		case status >= 400:
			entry.Warn("Client error")
		default:
			entry.Debug("Request processed")
		}
	}
}

// WorkspaceLoader attaches the browser's workspace to the context, creating one on first visit
func WorkspaceLoader(registry *workspace.Registry, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, _ := session.Get(workspaceSessionKey).(string)

		ws, created := registry.GetOrCreate(id)
		if created {
			session.Set(workspaceSessionKey, ws.ID)
			if err := session.Save(); err != nil {
				logger.Errorf("Failed to save session: %v", err)
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}
		c.Set(workspaceContextKey, ws)
		c.Next()
	}
}

// AuthRequired sends anonymous users to the login page
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws := currentWorkspace(c)
		if ws.Auth.IsAuthenticated() {
			c.Next()
			return
		}
		redirectToLogin(c)
		c.Abort()
	}
}

// CSRFProtection keeps a token in the session and checks it on unsafe methods.
// The token is accepted from the form field or the X-CSRF-Token header.
func CSRFProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(csrfSessionKey).(string)
		if token == "" {
			var err error
			if token, err = newToken(32); err != nil {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			session.Set(csrfSessionKey, token)
			if err := session.Save(); err != nil {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}
		c.Set(csrfContextKey, token)

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			sent := c.GetHeader(csrfHeaderKey)
			if sent == "" {
				sent = c.PostForm(csrfFormKey)
			}
			if sent != token {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "invalid CSRF token"})
				return
			}
		}
		c.Next()
	}
}

func newToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func currentWorkspace(c *gin.Context) *workspace.Workspace {
	return c.MustGet(workspaceContextKey).(*workspace.Workspace)
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") ||
		strings.HasPrefix(c.Request.URL.Path, "/api/")
}

func redirectToLogin(c *gin.Context) {
	if wantsJSON(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "authentication required", "redirect": "/login"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}
