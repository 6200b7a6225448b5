package models

import "time"

// Wallet holds the patient's balance in cents. Debited only inside the
// extension transaction.
type Wallet struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
