package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gamify-journal/internal/service"
)

type registerRequest struct {
	Username         string `json:"username" binding:"required"`
	Email            string `json:"email" binding:"required"`
	DisplayName      string `json:"display_name"`
	Password         string `json:"password" binding:"required"`
	RegisterPassword string `json:"register_password"`
}

type tokenRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.Users.Register(c.Request.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Secret:      req.RegisterPassword,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userToResponse(*user))
}

// token accepts both a JSON body and an OAuth2 password form.
func (h *Handler) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.Users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", "Bearer")
		}
		h.writeError(c, err)
		return
	}

	signed, expires, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   formatTime(expires),
	})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.svc.Users.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

// deleteMe removes remote exports first, then the account and everything
// cascading from it. Export cleanup failures are reported as warnings.
func (h *Handler) deleteMe(c *gin.Context) {
	uid := currentUserID(c)

	var warnings []string
	if h.svc.Exports != nil {
		remoteCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		if err := h.svc.Exports.DeleteAllForUser(remoteCtx, uid); err != nil {
			warnings = append(warnings, fmt.Sprintf("delete remote exports: %v", err))
		}
	}

	if err := h.svc.Users.Delete(c.Request.Context(), uid); err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"deleted": uid}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}
