package verification

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikkii-gg/ikkii-server/internal/duel"
)

// Handler receives dispute rulings from the verification service.
type Handler struct {
	service *duel.Service
	apiKey  string
}

// NewHandler creates the verification callback handler. If apiKey is empty
// the callback endpoint is open, which is only acceptable in development.
func NewHandler(service *duel.Service, apiKey string) *Handler {
	return &Handler{service: service, apiKey: apiKey}
}

// RegisterRoutes sets up verification routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/verification/duels/:id", h.requireKey, h.ResolveDuel)
}

func (h *Handler) requireKey(c *gin.Context) {
	if h.apiKey == "" {
		return
	}
	key := c.GetHeader("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid or missing API key",
		})
	}
}

// ResolveRequest is the ruling payload posted by the verifier.
type ResolveRequest struct {
	Winner   string `json:"winner" binding:"required"`
	Evidence string `json:"evidence"`
}

// ResolveDuel handles POST /v1/verification/duels/:id
func (h *Handler) ResolveDuel(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "winner is required",
		})
		return
	}

	resolved, err := h.service.ResolveDispute(c.Request.Context(), c.Param("id"), req.Winner)
	if err != nil {
		resolutionsTotal.WithLabelValues("rejected").Inc()
		h.writeError(c, err)
		return
	}

	resolutionsTotal.WithLabelValues("settled").Inc()
	c.JSON(http.StatusOK, gin.H{"duel": resolved})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, duel.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Duel not found",
		})
	case errors.Is(err, duel.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, duel.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "resolution_failed",
			"message": "Failed to resolve dispute",
		})
	}
}
