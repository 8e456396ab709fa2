package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProfileStore keeps profiles in the conversation_profiles table.
// The JSON document is authoritative; step, language and phone are
// duplicated into columns for operator queries.
type PostgresProfileStore struct {
	db rowQuerier
}

var _ ProfileStore = (*PostgresProfileStore)(nil)

// NewPostgresProfileStore wraps a pgx pool.
func NewPostgresProfileStore(pool *pgxpool.Pool) *PostgresProfileStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresProfileStore{db: pool}
}

func newPostgresProfileStoreWithExec(db rowQuerier) *PostgresProfileStore {
	if db == nil {
		panic("conversation: exec required")
	}
	return &PostgresProfileStore{db: db}
}

func (s *PostgresProfileStore) Get(ctx context.Context, contactID string) (*Profile, error) {
	query := `SELECT data, version FROM conversation_profiles WHERE contact_id = $1`
	var (
		raw     []byte
		version int64
	)
	if err := s.db.QueryRow(ctx, query, contactID).Scan(&raw, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("conversation: failed to load profile: %w", err)
	}
	profile, err := decodeProfile(raw)
	if err != nil {
		return nil, err
	}
	profile.Version = version
	return profile, nil
}

func (s *PostgresProfileStore) Upsert(ctx context.Context, profile *Profile) error {
	if err := validateForWrite(profile); err != nil {
		return err
	}
	next := profile.Clone()
	next.Version = profile.Version + 1
	raw, err := encodeProfile(&next)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var tag pgconn.CommandTag
	if profile.Version == 0 {
		tag, err = s.db.Exec(ctx, `
			INSERT INTO conversation_profiles (contact_id, phone, step, language, version, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (contact_id) DO NOTHING
		`, next.ContactID, next.Phone, string(next.Step), string(next.Language), next.Version, raw, now)
	} else {
		tag, err = s.db.Exec(ctx, `
			UPDATE conversation_profiles
			SET phone = $2, step = $3, language = $4, version = $5, data = $6, updated_at = $7
			WHERE contact_id = $1 AND version = $8
		`, next.ContactID, next.Phone, string(next.Step), string(next.Language), next.Version, raw, now, profile.Version)
	}
	if err != nil {
		return fmt.Errorf("conversation: failed to persist profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	profile.Version = next.Version
	return nil
}

func (s *PostgresProfileStore) Delete(ctx context.Context, contactID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM conversation_profiles WHERE contact_id = $1`, contactID); err != nil {
		return fmt.Errorf("conversation: failed to delete profile: %w", err)
	}
	return nil
}
