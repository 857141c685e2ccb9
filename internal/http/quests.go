package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gamify-journal/internal/domain"
)

func (h *Handler) availableQuests(c *gin.Context) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}

	templates, err := h.svc.Quests.Available(c.Request.Context(), currentUserID(c), skip, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]QuestTemplateResponse, len(templates))
	for i := range templates {
		resp[i] = templateToResponse(templates[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) generateQuest(c *gin.Context) {
	tmpl, err := h.svc.Quests.Generate(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, templateToResponse(*tmpl))
}

func (h *Handler) acceptQuest(c *gin.Context) {
	id, ok := parseID(c, "quest")
	if !ok {
		return
	}

	quest, err := h.svc.Quests.Accept(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, questToResponse(*quest))
}

func (h *Handler) myQuests(c *gin.Context) {
	var status *domain.QuestStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := domain.ParseQuestStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = &parsed
	}

	quests, err := h.svc.Quests.ListMine(c.Request.Context(), currentUserID(c), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, questsToResponse(quests))
}
