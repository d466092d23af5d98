package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ikkii-gg/ikkii-server/internal/validation"
)

// Handler provides HTTP endpoints for escrow wallet operations.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new escrow handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up escrow routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/wallets", h.CreateWallet)
	r.GET("/wallets/:userId", h.GetWallets)
	r.GET("/wallets/:userId/history", h.GetHistory)
	r.POST("/wallets/:userId/deposit", h.Deposit)
	r.POST("/wallets/:userId/withdraw", h.Withdraw)
	r.POST("/wallets/:userId/lock", h.Lock)
	r.POST("/wallets/:userId/unlock", h.Unlock)
	r.POST("/transfer", h.Transfer)
}

// CreateWalletRequest creates a zero-balance wallet for a user and mint.
type CreateWalletRequest struct {
	UserID string `json:"userId" binding:"required"`
	Mint   string `json:"mint" binding:"required"`
}

// CreateWallet handles POST /v1/escrow/wallets
func (h *Handler) CreateWallet(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidWallet("userId", req.UserID),
		validation.ValidMint("mint", req.Mint),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	account, err := h.ledger.CreateAccount(c.Request.Context(), req.UserID, req.Mint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "wallet_error",
			"message": "Failed to create wallet",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"wallet": account})
}

// GetWallets handles GET /v1/escrow/wallets/:userId
// With ?token=<mint> it returns the single wallet for that mint; without it,
// all of the user's wallets.
func (h *Handler) GetWallets(c *gin.Context) {
	userID := c.Param("userId")

	if mint := c.Query("token"); mint != "" {
		account, err := h.ledger.GetAccount(c.Request.Context(), userID, mint)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "wallet_error",
				"message": "Failed to retrieve wallet",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": account})
		return
	}

	accounts, err := h.ledger.ListAccounts(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "wallet_error",
			"message": "Failed to retrieve wallets",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallets": accounts})
}

// GetHistory handles GET /v1/escrow/wallets/:userId/history?token=<mint>
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")

	mint := c.Query("token")
	if mint == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_token",
			"message": "token query parameter is required",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	entries, err := h.ledger.History(c.Request.Context(), userID, mint, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "wallet_error",
			"message": "Failed to retrieve wallet history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// BalanceRequest moves an amount on a single wallet.
type BalanceRequest struct {
	Mint        string `json:"mint" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Reference   string `json:"reference"`
	TxSignature string `json:"txSignature"`
}

func (h *Handler) bindBalanceRequest(c *gin.Context) (string, *BalanceRequest, bool) {
	userID := c.Param("userId")

	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return "", nil, false
	}

	if errs := validation.Validate(
		validation.ValidWallet("userId", userID),
		validation.ValidMint("mint", req.Mint),
		validation.ValidAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return "", nil, false
	}

	return userID, &req, true
}

// Deposit handles POST /v1/escrow/wallets/:userId/deposit
func (h *Handler) Deposit(c *gin.Context) {
	userID, req, ok := h.bindBalanceRequest(c)
	if !ok {
		return
	}

	if err := h.ledger.Deposit(c.Request.Context(), userID, req.Mint, req.Amount, req.TxSignature); err != nil {
		h.writeError(c, err, "deposit_failed", "Failed to credit deposit")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "credited",
		"message": "Deposit credited to wallet",
	})
}

// Withdraw handles POST /v1/escrow/wallets/:userId/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	userID, req, ok := h.bindBalanceRequest(c)
	if !ok {
		return
	}

	if err := h.ledger.Withdraw(c.Request.Context(), userID, req.Mint, req.Amount, req.TxSignature); err != nil {
		h.writeError(c, err, "withdrawal_failed", "Failed to process withdrawal")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "debited",
		"message": "Withdrawal processed",
	})
}

// Lock handles POST /v1/escrow/wallets/:userId/lock
func (h *Handler) Lock(c *gin.Context) {
	userID, req, ok := h.bindBalanceRequest(c)
	if !ok {
		return
	}

	if err := h.ledger.Lock(c.Request.Context(), userID, req.Mint, req.Amount, req.Reference); err != nil {
		h.writeError(c, err, "lock_failed", "Failed to lock funds")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "locked",
		"message": "Funds locked",
	})
}

// Unlock handles POST /v1/escrow/wallets/:userId/unlock
func (h *Handler) Unlock(c *gin.Context) {
	userID, req, ok := h.bindBalanceRequest(c)
	if !ok {
		return
	}

	if err := h.ledger.Unlock(c.Request.Context(), userID, req.Mint, req.Amount, req.Reference); err != nil {
		h.writeError(c, err, "unlock_failed", "Failed to unlock funds")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "unlocked",
		"message": "Funds unlocked",
	})
}

// TransferRequest moves locked funds from one wallet to another's available.
type TransferRequest struct {
	FromUserID string `json:"fromUserId" binding:"required"`
	ToUserID   string `json:"toUserId" binding:"required"`
	Mint       string `json:"mint" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	Reference  string `json:"reference"`
}

// Transfer handles POST /v1/escrow/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidWallet("fromUserId", req.FromUserID),
		validation.ValidWallet("toUserId", req.ToUserID),
		validation.ValidMint("mint", req.Mint),
		validation.ValidAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	if err := h.ledger.Transfer(c.Request.Context(), req.FromUserID, req.ToUserID, req.Mint, req.Amount, req.Reference); err != nil {
		h.writeError(c, err, "transfer_failed", "Failed to transfer funds")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "transferred",
		"message": "Funds transferred",
	})
}

func (h *Handler) writeError(c *gin.Context, err error, fallbackCode, fallbackMsg string) {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		InsufficientFundsTotal.Inc()
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "insufficient_funds",
			"message": "Insufficient funds for this operation",
		})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal number",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Wallet not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fallbackCode,
			"message": fallbackMsg,
		})
	}
}
