package handler

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"wristsight-viewer/internal/history"
	"wristsight-viewer/internal/measurements"
	"wristsight-viewer/internal/overlay"
	"wristsight-viewer/internal/session"
	"wristsight-viewer/internal/upload"
	"wristsight-viewer/internal/viewstate"
	"wristsight-viewer/internal/workspace"
	"wristsight-viewer/pkg/models"
)

// Flash kinds
const (
	flashSuccess = "success"
	flashError   = "error"
)

// Flash is a one-shot message carried across a redirect
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Panel is one image with its overlay
type Panel struct {
	View     models.View     `json:"view"`
	Title    string          `json:"title"`
	ImageURL string          `json:"image_url"`
	Overlay  overlay.Overlay `json:"overlay"`
}

// AnalysisView is the loaded analysis as rendered
type AnalysisView struct {
	Record models.AnalysisRecord `json:"record"`
	Panels []Panel               `json:"panels"`
	Table  measurements.Table    `json:"table"`
}

// Controls are the view selector, zoom and overlay toggles
type Controls struct {
	Buttons     []viewstate.Button `json:"buttons"`
	View        viewstate.Mode     `json:"view"`
	Zoom        float64            `json:"zoom"`
	ZoomPercent int                `json:"zoom_percent"`
	CanZoomIn   bool               `json:"can_zoom_in"`
	CanZoomOut  bool               `json:"can_zoom_out"`
	Toggles     overlay.Toggles    `json:"toggles"`
}

// PageModel is everything a page or /api/state needs
type PageModel struct {
	Page        string          `json:"page"`
	AuthEnabled bool            `json:"auth_enabled"`
	User        *models.User    `json:"user,omitempty"`
	CSRFToken   string          `json:"csrf_token,omitempty"`
	Flashes     []Flash         `json:"flashes,omitempty"`
	Analysis    *AnalysisView   `json:"analysis,omitempty"`
	Controls    Controls        `json:"controls"`
	Upload      upload.Form     `json:"upload"`
	History     history.Listing `json:"history"`
	DemoOverlay bool            `json:"demo_overlay"`
}

var viewTitles = map[models.View]string{
	models.ViewAP:  "AP View",
	models.ViewLat: "Lateral View",
}

func (h *Handler) pageModel(c *gin.Context, ws *workspace.Workspace, page string) PageModel {
	snap := ws.Session.Snapshot()

	m := PageModel{
		Page:        page,
		AuthEnabled: h.opts.AuthEnabled,
		CSRFToken:   c.GetString(csrfContextKey),
		Flashes:     takeFlashes(c),
		Controls:    controls(snap),
		Upload:      ws.Upload.Form(),
		History:     ws.History.Listing(),
		DemoOverlay: h.projector.DemoEnabled(),
	}
	if user, ok := ws.Auth.CurrentUser(); ok {
		m.User = user
	}
	if snap.Loaded() {
		m.Analysis = h.analysisView(ws, snap)
	}
	return m
}

func (h *Handler) analysisView(ws *workspace.Workspace, snap session.Snapshot) *AnalysisView {
	rec := *snap.Record
	av := &AnalysisView{
		Record: rec,
		Panels: make([]Panel, 0, len(models.Views)),
		Table:  measurements.Build(rec),
	}
	for _, v := range models.Views {
		if !snap.View.Shows(v) {
			continue
		}
		av.Panels = append(av.Panels, Panel{
			View:     v,
			Title:    viewTitles[v],
			ImageURL: ws.API.ResolveImageURL(rec.ImageURL(v)),
			Overlay:  h.projector.Project(snap.Record, v, snap.Toggles),
		})
	}
	return av
}

func controls(snap session.Snapshot) Controls {
	zoom := snap.View.Zoom()
	return Controls{
		Buttons:     snap.View.Buttons(),
		View:        snap.View.Current(),
		Zoom:        zoom,
		ZoomPercent: int(zoom*100 + 0.5),
		CanZoomIn:   zoom < viewstate.MaxZoom,
		CanZoomOut:  zoom > viewstate.MinZoom,
		Toggles:     snap.Toggles,
	}
}

func addFlash(c *gin.Context, kind, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, kind)
	session.Save()
}

func takeFlashes(c *gin.Context) []Flash {
	session := sessions.Default(c)
	var out []Flash
	for _, kind := range []string{flashSuccess, flashError} {
		for _, f := range session.Flashes(kind) {
			if msg, ok := f.(string); ok {
				out = append(out, Flash{Kind: kind, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		session.Save()
	}
	return out
}
