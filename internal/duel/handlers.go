package duel

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for duel operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new duel handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up duel routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/duels", h.CreateDuel)
	r.GET("/duels", h.ListDuels)
	r.GET("/duels/:id", h.GetDuel)
	r.POST("/duels/:id/join", h.JoinDuel)
	r.POST("/duels/:id/result", h.SubmitResult)
	r.POST("/duels/:id/cancel", h.CancelDuel)
	r.POST("/duels/cleanup", h.SweepExpired)
}

// CreateDuel handles POST /v1/duels
func (h *Handler) CreateDuel(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	duel, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "create_failed", "Failed to create duel")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"duel": duel})
}

// GetDuel handles GET /v1/duels/:id
func (h *Handler) GetDuel(c *gin.Context) {
	duel, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "duel_error", "Failed to retrieve duel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"duel": duel})
}

// ListDuels handles GET /v1/duels?status=OPEN or ?player=<wallet>, with
// optional ?cursor= for the next page.
func (h *Handler) ListDuels(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}
	cursor := c.Query("cursor")

	if player := c.Query("player"); player != "" {
		page, err := h.service.ListByPlayer(c.Request.Context(), player, cursor, limit)
		if err != nil {
			h.writeError(c, err, "duel_error", "Failed to list duels")
			return
		}
		h.writePage(c, page)
		return
	}

	statusStr := c.DefaultQuery("status", string(StatusOpen))
	status, ok := ParseStatus(statusStr)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "status must be one of OPEN, ACTIVE, DISPUTED, SETTLED, CANCELLED",
		})
		return
	}

	page, err := h.service.ListByStatus(c.Request.Context(), status, cursor, limit)
	if err != nil {
		h.writeError(c, err, "duel_error", "Failed to list duels")
		return
	}
	h.writePage(c, page)
}

func (h *Handler) writePage(c *gin.Context, page *Page) {
	resp := gin.H{"duels": page.Duels, "hasMore": page.HasMore}
	if page.NextCursor != "" {
		resp["nextCursor"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// JoinRequest identifies the challenger.
type JoinRequest struct {
	Player2 string `json:"player2" binding:"required"`
}

// JoinDuel handles POST /v1/duels/:id/join
func (h *Handler) JoinDuel(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	duel, err := h.service.Join(c.Request.Context(), c.Param("id"), req.Player2)
	if err != nil {
		h.writeError(c, err, "join_failed", "Failed to join duel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"duel": duel})
}

// ResultRequest carries one player's claimed winner.
type ResultRequest struct {
	Player        string `json:"player" binding:"required"`
	ClaimedWinner string `json:"claimedWinner" binding:"required"`
}

// SubmitResult handles POST /v1/duels/:id/result
func (h *Handler) SubmitResult(c *gin.Context) {
	var req ResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	outcome, err := h.service.SubmitResult(c.Request.Context(), c.Param("id"), req.Player, req.ClaimedWinner)
	if err != nil {
		h.writeError(c, err, "submit_failed", "Failed to submit result")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"duel":     outcome.Duel,
		"resolved": outcome.Resolved,
	})
}

// CancelRequest identifies the requester.
type CancelRequest struct {
	Requester string `json:"requester" binding:"required"`
}

// CancelDuel handles POST /v1/duels/:id/cancel
func (h *Handler) CancelDuel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	duel, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Requester)
	if err != nil {
		h.writeError(c, err, "cancel_failed", "Failed to cancel duel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"duel": duel})
}

// SweepExpired handles POST /v1/duels/cleanup
func (h *Handler) SweepExpired(c *gin.Context) {
	cancelled, err := h.service.SweepExpired(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "sweep_failed",
			"message": "Failed to sweep expired duels",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (h *Handler) writeError(c *gin.Context, err error, fallbackCode, fallbackMsg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Duel not found",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_submitted",
			"message": err.Error(),
		})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": err.Error(),
		})
	case errors.Is(err, ErrSelfPlay):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "self_play",
			"message": err.Error(),
		})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "insufficient_funds",
			"message": "Insufficient funds to stake this duel",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fallbackCode,
			"message": fallbackMsg,
		})
	}
}
