package models

import "database/sql"

// Profile is the subset of the platform users table needed to enrich chat
// listings. The users table is owned by the identity service.
type Profile struct {
	ID          int64          `db:"id" json:"id"`
	DisplayName string         `db:"display_name" json:"display_name"`
	AvatarURL   sql.NullString `db:"avatar_url" json:"-"`
	Role        string         `db:"role" json:"role"`
}
