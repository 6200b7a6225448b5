package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"consult-chat/internal/models"
)

var ErrWalletNotFound = errors.New("wallet not found")

// WalletRepository reads wallet state. The debit happens only inside the
// extension transaction and is not exposed here.
type WalletRepository interface {
	GetByUser(ctx context.Context, userID int64) (models.Wallet, error)
}

// WalletRepo is a sqlx implementation of WalletRepository.
type WalletRepo struct {
	db *sqlx.DB
}

// NewWalletRepo constructs a WalletRepo.
func NewWalletRepo(db *sqlx.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// GetByUser fetches the user's wallet.
func (r *WalletRepo) GetByUser(ctx context.Context, userID int64) (models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.GetContext(ctx, &wallet, `SELECT user_id, balance, updated_at FROM wallets WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrWalletNotFound
	}
	return wallet, err
}
