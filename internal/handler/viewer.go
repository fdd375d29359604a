package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wristsight-viewer/internal/overlay"
	"wristsight-viewer/internal/viewstate"
)

// ViewerPage renders the upload form and the loaded analysis
func (h *Handler) ViewerPage(c *gin.Context) {
	ws := currentWorkspace(c)
	c.HTML(http.StatusOK, "viewer.html", h.pageModel(c, ws, "viewer"))
}

// SetView selects both/ap/lat. Views without an image are refused.
func (h *Handler) SetView(c *gin.Context) {
	ws := currentWorkspace(c)

	mode, ok := viewstate.ParseMode(c.PostForm("view"))
	if !ok {
		h.fail(c, ws, "/", badRequest("unknown view "+c.PostForm("view")))
		return
	}
	if !ws.Session.SetActiveView(mode) {
		h.fail(c, ws, "/", badRequest("the "+string(mode)+" view is not available for this analysis"))
		return
	}
	h.done(c, ws, "/", "")
}

// Zoom handles action=in|out|reset
func (h *Handler) Zoom(c *gin.Context) {
	ws := currentWorkspace(c)

	switch c.PostForm("action") {
	case "in":
		ws.Session.ZoomIn()
	case "out":
		ws.Session.ZoomOut()
	case "reset":
		ws.Session.ResetZoom()
	default:
		h.fail(c, ws, "/", badRequest("zoom action must be in, out or reset"))
		return
	}
	h.done(c, ws, "/", "")
}

// SetToggles switches overlay categories. With a category field only that one is
// changed (value on=true|false); otherwise the checkbox set replaces all three.
func (h *Handler) SetToggles(c *gin.Context) {
	ws := currentWorkspace(c)

	if category := c.PostForm("category"); category != "" {
		on := c.PostForm("on") == "true" || c.PostForm("on") == "on" || c.PostForm("on") == "1"
		if !ws.Session.SetToggle(overlay.Category(category), on) {
			h.fail(c, ws, "/", badRequest("unknown overlay category "+category))
			return
		}
		h.done(c, ws, "/", "")
		return
	}

	ws.Session.SetToggles(overlay.Toggles{
		Landmarks:    c.PostForm(string(overlay.CategoryLandmarks)) != "",
		Lines:        c.PostForm(string(overlay.CategoryLines)) != "",
		Measurements: c.PostForm(string(overlay.CategoryMeasurements)) != "",
	})
	h.done(c, ws, "/", "")
}

// Clear unloads the analysis
func (h *Handler) Clear(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Session.Clear()
	h.done(c, ws, "/", "")
}
