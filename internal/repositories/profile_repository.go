package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository stores display profiles and last-seen timestamps.
type ProfileRepository interface {
	EnsureProfile(ctx context.Context, identity, displayName, avatarURL string) error
	GetProfile(ctx context.Context, identity string) (models.Profile, error)
	GetProfiles(ctx context.Context, identities []string) (map[string]models.Profile, error)
	TouchLastSeen(ctx context.Context, identity string, timestamp int64) error
}

type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// EnsureProfile creates the profile row if missing. Non-empty display fields overwrite stored ones.
func (r *ProfileRepo) EnsureProfile(ctx context.Context, identity, displayName, avatarURL string) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO user_profile (identity, display_name, avatar_url) VALUES (?, ?, ?)
            ON CONFLICT (identity) DO UPDATE SET
                display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE user_profile.display_name END,
                avatar_url = CASE WHEN excluded.avatar_url <> '' THEN excluded.avatar_url ELSE user_profile.avatar_url END`),
		identity, displayName, avatarURL,
	)
	if err != nil {
		return apperrors.NewStorageError(err, "ensure profile")
	}
	return nil
}

func (r *ProfileRepo) GetProfile(ctx context.Context, identity string) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p,
		r.db.Rebind(`SELECT identity, display_name, avatar_url, last_seen FROM user_profile WHERE identity = ?`),
		identity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, apperrors.Wrap(ErrProfileNotFound, apperrors.ErrCodeNotFound, "get profile")
	}
	if err != nil {
		return models.Profile{}, apperrors.NewStorageError(err, "get profile")
	}
	return p, nil
}

// GetProfiles loads profiles keyed by identity. Unknown identities are absent from the result.
func (r *ProfileRepo) GetProfiles(ctx context.Context, identities []string) (map[string]models.Profile, error) {
	profiles := make(map[string]models.Profile, len(identities))
	if len(identities) == 0 {
		return profiles, nil
	}
	query, args, err := sqlx.In(`SELECT identity, display_name, avatar_url, last_seen FROM user_profile WHERE identity IN (?)`, identities)
	if err != nil {
		return nil, apperrors.NewStorageError(err, "build profile query")
	}
	var rows []models.Profile
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.NewStorageError(err, "load profiles")
	}
	for _, p := range rows {
		profiles[p.Identity] = p
	}
	return profiles, nil
}

// TouchLastSeen records when identity was last connected.
func (r *ProfileRepo) TouchLastSeen(ctx context.Context, identity string, timestamp int64) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO user_profile (identity, last_seen) VALUES (?, ?)
            ON CONFLICT (identity) DO UPDATE SET last_seen = excluded.last_seen`),
		identity, timestamp,
	)
	if err != nil {
		return apperrors.NewStorageError(err, "touch last seen")
	}
	return nil
}
