// Package handler exposes the ingest module's REST endpoints: file preview
// and late upload status polling. The realtime protocol itself lives on the
// websocket endpoint owned by the session supervisor.
package handler

import (
	"net/http"
	"strconv"

	"dealerhub_backend/internal/audit"
	"dealerhub_backend/internal/ingest/service"
	"dealerhub_backend/platform/httpkit"
	"dealerhub_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// maxPreviewFileSize caps the uploaded source file at 50 MiB.
const maxPreviewFileSize = 50 << 20

type Handler struct {
	previewer   *service.Previewer
	coordinator *service.Coordinator
	history     *audit.Repository
	log         *logger.Logger
}

func New(previewer *service.Previewer, coordinator *service.Coordinator, history *audit.Repository, log *logger.Logger) *Handler {
	return &Handler{previewer: previewer, coordinator: coordinator, history: history, log: log}
}

// RegisterRoutes mounts the REST endpoints on the authenticated group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/preview", h.Preview)
	group.GET("/uploads/:batchId", h.UploadStatus)
	group.GET("/history", h.History)
}

// Preview accepts a multipart CSV upload, archives the raw file, and returns
// the detected columns, type analysis, and a suggested field mapping.
func (h *Handler) Preview(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "file is required", nil)
		return
	}
	if fileHeader.Size > maxPreviewFileSize {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "file exceeds the 50 MiB limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "failed to read uploaded file", nil)
		return
	}
	defer file.Close()

	resp, err := h.previewer.Preview(c.Request.Context(), fileHeader.Filename, fileHeader.Size, file)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// UploadStatus answers status polling by batch id, including during the
// grace window after the owning connection dropped.
func (h *Handler) UploadStatus(c *gin.Context) {
	batchID := c.Param("batchId")
	if batchID == "" {
		httpkit.Error(c, http.StatusBadRequest, "batchId is required", nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	status, err := h.coordinator.StatusByBatchID(batchID, identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, status)
}

// History lists the company's recently completed uploads from the audit
// trail written by the background worker.
func (h *Handler) History(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := h.history.ListByTenant(c.Request.Context(), identity.TenantID(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"uploads": entries})
}
