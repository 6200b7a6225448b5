package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"consult-chat/internal/repositories"
)

// WalletHandler exposes the caller's balance so clients can surface it
// before a paid extension is accepted.
type WalletHandler struct {
	wallets repositories.WalletRepository
}

// NewWalletHandler builds a WalletHandler.
func NewWalletHandler(wallets repositories.WalletRepository) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetBalance returns the authenticated user's wallet balance in cents.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("userID")

	wallet, err := h.wallets.GetByUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			c.JSON(http.StatusOK, gin.H{"balance": 0})
			return
		}
		log.Error().Err(err).Int64("user_id", userID).Msg("load wallet")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": wallet.Balance})
}
