package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"wristsight-viewer/internal/upload"
	"wristsight-viewer/internal/workspace"
	"wristsight-viewer/pkg/models"
)

var imageFields = map[models.View]string{
	models.ViewAP:  "ap_image",
	models.ViewLat: "lat_image",
}

// UploadForm takes the whole upload form in one multipart request and submits it
func (h *Handler) UploadForm(c *gin.Context) {
	ws := currentWorkspace(c)
	h.logger.Info("Received upload form")

	if _, ok := c.GetPostForm("patient_id"); ok {
		ws.Upload.SetPatientID(c.PostForm("patient_id"))
	}
	if _, ok := c.GetPostForm("notes"); ok {
		ws.Upload.SetNotes(c.PostForm("notes"))
	}
	for _, v := range models.Views {
		err := h.readImage(c, ws, v, imageFields[v])
		if missingFile(err) {
			continue
		}
		if err != nil {
			h.fail(c, ws, "/", err)
			return
		}
	}
	h.submit(c, ws)
}

// SetPatient sets patient ID and notes
func (h *Handler) SetPatient(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Upload.SetPatientID(c.PostForm("patient_id"))
	if notes, ok := c.GetPostForm("notes"); ok {
		ws.Upload.SetNotes(notes)
	}
	h.done(c, ws, "/", "")
}

// SelectImage puts the uploaded "image" file into the slot named in the path
func (h *Handler) SelectImage(c *gin.Context) {
	ws := currentWorkspace(c)

	slot, ok := models.ParseView(c.Param("slot"))
	if !ok {
		h.fail(c, ws, "/", upload.ErrUnknownSlot)
		return
	}
	if err := h.readImage(c, ws, slot, "image"); err != nil {
		if missingFile(err) {
			err = badRequest("no file was sent")
		}
		h.fail(c, ws, "/", err)
		return
	}
	h.done(c, ws, "/", "")
}

// RemoveImage clears a slot
func (h *Handler) RemoveImage(c *gin.Context) {
	ws := currentWorkspace(c)

	slot, ok := models.ParseView(c.Param("slot"))
	if !ok {
		h.fail(c, ws, "/", upload.ErrUnknownSlot)
		return
	}
	ws.Upload.RemoveImage(slot)
	h.done(c, ws, "/", "")
}

// Submit sends the current form
func (h *Handler) Submit(c *gin.Context) {
	h.submit(c, currentWorkspace(c))
}

// ResetUpload clears the form
func (h *Handler) ResetUpload(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Upload.Reset()
	h.done(c, ws, "/", "")
}

func (h *Handler) submit(c *gin.Context, ws *workspace.Workspace) {
	id, err := ws.Upload.Submit(c.Request.Context())
	if err != nil {
		h.fail(c, ws, "/", err)
		return
	}
	h.done(c, ws, "/", fmt.Sprintf("Analysis %s completed", id))
}

// readImage reads a multipart file field into the slot
func (h *Handler) readImage(c *gin.Context, ws *workspace.Workspace, slot models.View, field string) error {
	header, err := c.FormFile(field)
	if err != nil {
		return err
	}
	maxBytes := int64(h.opts.MaxUploadMB) << 20
	if header.Size > maxBytes {
		return upload.ErrImageTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", field, err)
	}
	h.logger.Debugf("Read %d bytes from %s for %s slot", len(data), header.Filename, slot)
	return ws.Upload.SelectImage(slot, header.Filename, data)
}

func missingFile(err error) bool {
	return errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart)
}
