package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consult-chat/internal/mocks"
	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

func setupWalletRouter(handler *WalletHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/wallet", handler.GetBalance)
	return r
}

func TestGetBalanceSuccess(t *testing.T) {
	walletRepo := new(mocks.WalletRepositoryMock)
	router := setupWalletRouter(NewWalletHandler(walletRepo))

	walletRepo.On("GetByUser", mock.Anything, int64(1)).Return(models.Wallet{UserID: 1, Balance: 12500}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(12500), resp["balance"])
	walletRepo.AssertExpectations(t)
}

func TestGetBalanceNoWalletRow(t *testing.T) {
	walletRepo := new(mocks.WalletRepositoryMock)
	router := setupWalletRouter(NewWalletHandler(walletRepo))

	walletRepo.On("GetByUser", mock.Anything, int64(1)).Return(models.Wallet{}, repositories.ErrWalletNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Zero(t, resp["balance"])
}
