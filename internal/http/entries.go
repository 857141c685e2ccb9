package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gamify-journal/internal/service"
)

type submitEntryRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Mood      string     `json:"mood"`
	Tags      []string   `json:"tags"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *Handler) submitEntry(c *gin.Context) {
	var req submitEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Journal.SubmitEntry(c.Request.Context(), currentUserID(c), service.SubmitEntryInput{
		Title:     req.Title,
		Content:   req.Content,
		Mood:      req.Mood,
		Tags:      req.Tags,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitResponse{
		Entry:     entryToResponse(res.Entry),
		Character: sheetToResponse(res.Character),
		Quests:    questsToResponse(res.Quests),
		Events:    eventsToResponse(res.Events),
	})
}

func (h *Handler) listEntries(c *gin.Context) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}

	entries, err := h.svc.Journal.ListEntries(c.Request.Context(), currentUserID(c), skip, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]EntryResponse, len(entries))
	for i := range entries {
		resp[i] = entryToResponse(entries[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getEntry(c *gin.Context) {
	id, ok := parseID(c, "entry")
	if !ok {
		return
	}

	entry, err := h.svc.Journal.GetEntry(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryToResponse(*entry))
}
