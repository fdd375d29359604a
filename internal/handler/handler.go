package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/auth"
	"wristsight-viewer/internal/client"
	"wristsight-viewer/internal/history"
	"wristsight-viewer/internal/overlay"
	"wristsight-viewer/internal/upload"
	"wristsight-viewer/internal/workspace"
)

// Options configure the viewer handlers
type Options struct {
	AuthEnabled   bool
	CSRF          bool
	SessionSecret string
	SecureCookies bool
	CORSOrigins   []string
	AuthPerMinute int
	MaxUploadMB   int
	Development   bool
}

// Handler serves the viewer screens and their actions
type Handler struct {
	registry  *workspace.Registry
	projector *overlay.Projector
	opts      Options
	logger    *logrus.Logger
}

// NewHandler creates the viewer handler
func NewHandler(registry *workspace.Registry, projector *overlay.Projector, opts Options, logger *logrus.Logger) *Handler {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 20
	}
	return &Handler{
		registry:  registry,
		projector: projector,
		opts:      opts,
		logger:    logger,
	}
}

// RegisterRoutes registers pages and actions. Session and workspace middleware must already be installed.
func (h *Handler) RegisterRoutes(router gin.IRouter, authLimiter gin.HandlerFunc) {
	router.GET("/health", h.Health)

	router.GET("/login", h.LoginPage)
	router.POST("/login", authLimiter, h.Login)
	router.GET("/register", h.RegisterPage)
	router.POST("/register", authLimiter, h.Register)
	router.POST("/logout", h.Logout)

	app := router.Group("/")
	if h.opts.AuthEnabled {
		app.Use(AuthRequired())
	}
	{
		app.GET("/", h.ViewerPage)
		app.GET("/api/state", h.State)

		app.POST("/view", h.SetView)
		app.POST("/zoom", h.Zoom)
		app.POST("/toggles", h.SetToggles)
		app.POST("/clear", h.Clear)

		uploads := app.Group("/upload")
		{
			uploads.POST("", h.UploadForm)
			uploads.POST("/patient", h.SetPatient)
			uploads.POST("/image/:slot", h.SelectImage)
			uploads.POST("/image/:slot/remove", h.RemoveImage)
			uploads.POST("/submit", h.Submit)
			uploads.POST("/reset", h.ResetUpload)
		}

		hist := app.Group("/history")
		{
			hist.GET("", h.HistoryPage)
			hist.POST("/search", h.Search)
			hist.POST("/reset", h.ResetHistory)
			hist.POST("/quick", h.QuickSearch)
			hist.POST("/page", h.ChangePage)
			hist.POST("/select/:id", h.Select)
			hist.POST("/delete/:id", h.Delete)
			hist.POST("/patient/:id", h.PatientHistory)
		}

		app.GET("/analyses/:id", h.Select)
	}
}

// Health reports that the viewer is up
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"workspaces": h.registry.Len(),
	})
}

// State returns the page model of the current workspace as JSON
func (h *Handler) State(c *gin.Context) {
	ws := currentWorkspace(c)
	c.JSON(http.StatusOK, h.pageModel(c, ws, "state"))
}

// done finishes a successful action: JSON callers get the new state, forms a flash and a redirect
func (h *Handler) done(c *gin.Context, ws *workspace.Workspace, redirect, message string) {
	if wantsJSON(c) {
		model := h.pageModel(c, ws, "state")
		c.JSON(http.StatusOK, gin.H{"message": message, "state": model})
		return
	}
	if message != "" {
		addFlash(c, flashSuccess, message)
	}
	c.Redirect(http.StatusSeeOther, redirect)
}

// fail reports an action error. A 401 from the backend logs the user out.
func (h *Handler) fail(c *gin.Context, ws *workspace.Workspace, redirect string, err error) {
	if isUnauthorized(err) {
		h.logger.Warn("Backend rejected the token, logging out")
		ws.Auth.Logout()
		if !wantsJSON(c) {
			addFlash(c, flashError, "Your session has expired. Please log in again.")
		}
		redirectToLogin(c)
		return
	}

	status := statusFor(err)
	if wantsJSON(c) {
		c.JSON(status, gin.H{"detail": err.Error(), "state": h.pageModel(c, ws, "state")})
		return
	}
	addFlash(c, flashError, err.Error())
	c.Redirect(http.StatusSeeOther, redirect)
}

// badRequest is a malformed action request
type badRequest string

func (e badRequest) Error() string { return string(e) }

func statusFor(err error) int {
	var verr *auth.ValidationError
	var apiErr *client.APIError
	var bad badRequest
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &bad),
		errors.Is(err, upload.ErrPatientIDRequired),
		errors.Is(err, upload.ErrImageRequired),
		errors.Is(err, upload.ErrNotAnImage),
		errors.Is(err, upload.ErrUnknownSlot),
		errors.Is(err, history.ErrInvalidDate),
		errors.Is(err, history.ErrDateRangeOrder),
		errors.Is(err, history.ErrNoRecord),
		errors.Is(err, auth.ErrCredentialsRequired):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrSubmitInProgress):
		return http.StatusConflict
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

func isUnauthorized(err error) bool {
	return errors.Is(err, client.ErrUnauthorized)
}

func isForbidden(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}
