package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gamify-journal/internal/service"
)

type createCharacterRequest struct {
	Name  string `json:"name" binding:"required"`
	Class string `json:"character_class" binding:"required"`
}

type updateCharacterRequest struct {
	Name  *string `json:"name"`
	Class *string `json:"character_class"`
}

func (h *Handler) createCharacter(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sheet, err := h.svc.Characters.Create(c.Request.Context(), currentUserID(c), req.Name, req.Class)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sheetToResponse(*sheet))
}

func (h *Handler) getCharacter(c *gin.Context) {
	sheet, err := h.svc.Characters.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sheetToResponse(*sheet))
}

func (h *Handler) updateCharacter(c *gin.Context) {
	var req updateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sheet, err := h.svc.Characters.Update(c.Request.Context(), currentUserID(c), service.CharacterUpdate{
		Name:  req.Name,
		Class: req.Class,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sheetToResponse(*sheet))
}

// mergeStats takes a bare JSON object of stat name to value.
func (h *Handler) mergeStats(c *gin.Context) {
	var stats map[string]int
	if err := c.ShouldBindJSON(&stats); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sheet, err := h.svc.Characters.MergeStats(c.Request.Context(), currentUserID(c), stats)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sheetToResponse(*sheet))
}

func (h *Handler) replayCharacter(c *gin.Context) {
	report, err := h.svc.Characters.Replay(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ReplayResponse{
		Consistent: report.Consistent,
		EntryCount: report.EntryCount,
		Stored:     characterToResponse(report.Stored),
		Replayed:   characterToResponse(report.Replayed),
		Events:     eventsToResponse(report.Events),
	})
}
