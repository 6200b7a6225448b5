package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"consult-chat/internal/models"
)

// ProfileRepository resolves user ids to display data from the shared
// platform users table.
type ProfileRepository interface {
	BulkProfiles(ctx context.Context, ids []int64) (map[int64]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// BulkProfiles fetches multiple profiles in one query. Missing ids are
// simply absent from the result map.
func (r *ProfileRepo) BulkProfiles(ctx context.Context, ids []int64) (map[int64]models.Profile, error) {
	result := make(map[int64]models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, `SELECT id, display_name, avatar_url, role FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}
