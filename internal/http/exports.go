package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) requestExport(c *gin.Context) {
	export, err := h.svc.Exports.Request(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exportToResponse(*export))
}

func (h *Handler) listExports(c *gin.Context) {
	exports, err := h.svc.Exports.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]ExportResponse, len(exports))
	for i := range exports {
		resp[i] = exportToResponse(exports[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getExport(c *gin.Context) {
	id, ok := parseID(c, "export")
	if !ok {
		return
	}

	export, err := h.svc.Exports.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exportToResponse(*export))
}

func (h *Handler) exportURL(c *gin.Context) {
	id, ok := parseID(c, "export")
	if !ok {
		return
	}

	url, err := h.svc.Exports.DownloadURL(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) deleteExport(c *gin.Context) {
	id, ok := parseID(c, "export")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := h.svc.Exports.Delete(ctx, currentUserID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
