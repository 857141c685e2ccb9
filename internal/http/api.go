package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"gamify-journal/internal/metrics"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/repository"
	"gamify-journal/internal/service"
)

// Services are the domain operations exposed over HTTP.
type Services struct {
	Users      service.UserService
	Characters service.CharacterService
	Journal    service.JournalService
	Quests     service.QuestService
	Exports    service.ExportService
	Documents  service.DocumentService
}

// Options configure the cross-cutting parts of the API.
type Options struct {
	Tokens    *TokenIssuer
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger
	AuthRate  rate.Limit
	AuthBurst int
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	svc     Services
	tokens  *TokenIssuer
	metrics *metrics.Metrics
	logger  *logrus.Logger
	limiter *keyedLimiter
}

func NewHandler(svc Services, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.AuthRate <= 0 {
		opts.AuthRate = rate.Inf
	}
	if opts.AuthBurst <= 0 {
		opts.AuthBurst = 1
	}
	return &Handler{
		svc:     svc,
		tokens:  opts.Tokens,
		metrics: opts.Metrics,
		logger:  logger,
		limiter: newKeyedLimiter(opts.AuthRate, opts.AuthBurst),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.metrics.Middleware(), requestLogger(h.logger), corsMiddleware())
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := router.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	users := api.Group("/users")
	{
		users.POST("/register", h.limiter.middleware(h.logger), h.register)
		users.POST("/token", h.limiter.middleware(h.logger), h.token)
	}

	authed := api.Group("", h.authMiddleware())
	{
		authed.GET("/users/me", h.me)
		authed.DELETE("/users/me", h.deleteMe)

		authed.POST("/characters", h.createCharacter)
		authed.GET("/characters/me", h.getCharacter)
		authed.PUT("/characters/me", h.updateCharacter)
		authed.PUT("/characters/me/stats", h.mergeStats)
		authed.GET("/characters/me/replay", h.replayCharacter)

		authed.POST("/entries", h.submitEntry)
		authed.GET("/entries", h.listEntries)
		authed.GET("/entries/:id", h.getEntry)

		authed.GET("/quests/available", h.availableQuests)
		authed.POST("/quests/generate", h.generateQuest)
		authed.POST("/quests/accept/:id", h.acceptQuest)
		authed.GET("/quests/mine", h.myQuests)

		authed.POST("/exports", h.requestExport)
		authed.GET("/exports", h.listExports)
		authed.GET("/exports/:id", h.getExport)
		authed.GET("/exports/:id/url", h.exportURL)
		authed.DELETE("/exports/:id", h.deleteExport)

		authed.POST("/documents", h.createDocument)
		authed.GET("/documents/structure", h.documentStructure)
		authed.GET("/documents/:id", h.getDocument)
		authed.PUT("/documents/:id", h.updateDocument)
		authed.DELETE("/documents/:id", h.deleteDocument)
		authed.POST("/documents/folders", h.createFolder)
		authed.PUT("/documents/folders/:id", h.updateFolder)
		authed.DELETE("/documents/folders/:id", h.deleteFolder)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// writeError maps service and repository sentinels onto status codes.
// Unclassified errors are logged and reported as a generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRegistrationPassword):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, service.ErrCharacterExists),
		errors.Is(err, service.ErrQuestAlreadyAccepted),
		errors.Is(err, service.ErrPersistenceConflict),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, progression.ErrInvalidEvent),
		errors.Is(err, service.ErrCharacterRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrStorageDisabled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return 0, false
	}
	return id, true
}

// page reads skip and limit query parameters.
func page(c *gin.Context) (int, int, bool) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid skip"})
		return 0, 0, false
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > service.MaxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(service.MaxListLimit)})
		return 0, 0, false
	}
	return skip, limit, true
}
