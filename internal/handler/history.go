package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wristsight-viewer/internal/history"
)

// HistoryPage renders the history list, fetching it on first visit
func (h *Handler) HistoryPage(c *gin.Context) {
	ws := currentWorkspace(c)

	if !ws.History.Listing().Fetched {
		if err := ws.History.Fetch(c.Request.Context()); err != nil {
			h.logger.Errorf("Initial history fetch failed: %v", err)
			if isUnauthorized(err) {
				h.fail(c, ws, "/history", err)
				return
			}
		}
	}
	c.HTML(http.StatusOK, "history.html", h.pageModel(c, ws, "history"))
}

// Search applies the filter form and refetches
func (h *Handler) Search(c *gin.Context) {
	ws := currentWorkspace(c)

	var filters history.Filters
	if err := c.ShouldBind(&filters); err != nil {
		h.fail(c, ws, "/history", badRequest("invalid filter form"))
		return
	}
	if err := ws.History.Search(c.Request.Context(), filters); err != nil {
		h.fail(c, ws, "/history", err)
		return
	}
	h.done(c, ws, "/history", "")
}

// ResetHistory clears filters and quick search and refetches
func (h *Handler) ResetHistory(c *gin.Context) {
	ws := currentWorkspace(c)
	if err := ws.History.Reset(c.Request.Context()); err != nil {
		h.fail(c, ws, "/history", err)
		return
	}
	h.done(c, ws, "/history", "")
}

// QuickSearch sets the free-text search
func (h *Handler) QuickSearch(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.History.SetQuickSearch(c.PostForm("q"))
	h.done(c, ws, "/history", "")
}

// ChangePage handles dir=next|prev or page=N
func (h *Handler) ChangePage(c *gin.Context) {
	ws := currentWorkspace(c)

	switch c.PostForm("dir") {
	case "next":
		ws.History.NextPage()
	case "prev":
		ws.History.PrevPage()
	default:
		n, err := strconv.Atoi(c.PostForm("page"))
		if err != nil {
			h.fail(c, ws, "/history", badRequest("page must be a number"))
			return
		}
		ws.History.GoToPage(n)
	}
	h.done(c, ws, "/history", "")
}

// Select loads a history row into the viewer
func (h *Handler) Select(c *gin.Context) {
	ws := currentWorkspace(c)

	rec, err := ws.History.Select(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, ws, "/history", err)
		return
	}
	h.done(c, ws, "/", fmt.Sprintf("Loaded analysis %s", rec.ID))
}

// Delete removes an analysis; the viewer is cleared if it was showing it
func (h *Handler) Delete(c *gin.Context) {
	ws := currentWorkspace(c)
	id := c.Param("id")

	if err := ws.History.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, ws, "/history", err)
		return
	}
	if cur, ok := ws.Session.Current(); ok && cur.ID == id {
		ws.Session.Clear()
	}
	h.logger.Infof("Analysis %s deleted", id)
	h.done(c, ws, "/history", fmt.Sprintf("Analysis %s deleted", id))
}

// PatientHistory lists the analyses of one patient
func (h *Handler) PatientHistory(c *gin.Context) {
	ws := currentWorkspace(c)
	if err := ws.History.FetchPatient(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, ws, "/history", err)
		return
	}
	h.done(c, ws, "/history", "")
}
