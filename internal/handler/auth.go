package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"wristsight-viewer/pkg/models"
)

// LoginPage renders the login form
func (h *Handler) LoginPage(c *gin.Context) {
	ws := currentWorkspace(c)
	if !h.opts.AuthEnabled || ws.Auth.IsAuthenticated() {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "login.html", h.pageModel(c, ws, "login"))
}

// Login exchanges the form credentials for a backend token
func (h *Handler) Login(c *gin.Context) {
	ws := currentWorkspace(c)

	user, err := ws.Auth.Login(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		// a 401 or 403 here is a wrong password, not an expired session
		if isUnauthorized(err) || isForbidden(err) {
			err = badRequest("incorrect username or password")
		}
		h.fail(c, ws, "/login", err)
		return
	}
	h.done(c, ws, "/", "Welcome, "+user.Username)
}

// RegisterPage renders the registration form
func (h *Handler) RegisterPage(c *gin.Context) {
	ws := currentWorkspace(c)
	if !h.opts.AuthEnabled {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "register.html", h.pageModel(c, ws, "register"))
}

// Register creates an account and sends the user to the login form
func (h *Handler) Register(c *gin.Context) {
	ws := currentWorkspace(c)

	// form binding only: confirm_password is never part of a JSON body
	var req models.RegisterRequest
	if err := c.ShouldBindWith(&req, binding.Form); err != nil {
		h.fail(c, ws, "/register", badRequest("invalid registration form"))
		return
	}
	if _, err := ws.Auth.Register(c.Request.Context(), req); err != nil {
		h.fail(c, ws, "/register", err)
		return
	}
	h.done(c, ws, "/login", "Registration successful. Please log in.")
}

// Logout forgets the token and the loaded analysis
func (h *Handler) Logout(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Auth.Logout()
	ws.Session.Clear()
	ws.Upload.Reset()
	h.done(c, ws, "/login", "You have been logged out")
}
