// Package postgres provides a PostgreSQL implementation of the
// membership.Store interface using pgx. Every method is a single-row
// statement relying on PostgreSQL's per-statement atomicity; no multi-row
// transactions are needed.
//
// Expected schema:
//
//	CREATE TABLE members (
//	    id                TEXT PRIMARY KEY,
//	    plan              TEXT NOT NULL,
//	    is_on_trial       BOOLEAN NOT NULL DEFAULT FALSE,
//	    subscription_id   TEXT,
//	    words_today       INTEGER NOT NULL DEFAULT 0,
//	    words_this_month  INTEGER NOT NULL DEFAULT 0,
//	    words_total       INTEGER NOT NULL DEFAULT 0,
//	    tokens_today      INTEGER NOT NULL DEFAULT 0,
//	    tokens_this_month INTEGER NOT NULL DEFAULT 0,
//	    tokens_total      INTEGER NOT NULL DEFAULT 0,
//	    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX members_subscription_id_idx ON members (subscription_id);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxnote/membership/pkg/membership"
)

// Store implements membership.Store using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetMember implements membership.Store.
func (s *Store) GetMember(ctx context.Context, userID string) (*membership.Member, error) {
	var m membership.Member
	var subscriptionID *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, plan, is_on_trial, subscription_id,
			words_today, words_this_month, words_total,
			tokens_today, tokens_this_month, tokens_total,
			created_at, updated_at
		FROM members WHERE id = $1`,
		userID).Scan(
		&m.ID,
		&m.Plan,
		&m.IsOnTrial,
		&subscriptionID,
		&m.WordsToday,
		&m.WordsThisMonth,
		&m.WordsTotal,
		&m.TokensToday,
		&m.TokensThisMonth,
		&m.TokensTotal,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, membership.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if subscriptionID != nil {
		m.SubscriptionID = *subscriptionID
	}
	return &m, nil
}

// InsertMemberIfAbsent implements membership.Store. A conflicting row is
// left untouched (insert-if-absent, not upsert-overwrite).
func (s *Store) InsertMemberIfAbsent(ctx context.Context, m *membership.Member) error {
	if m == nil || m.ID == "" {
		return membership.ErrInvalidMember
	}

	var subscriptionID *string
	if m.SubscriptionID != "" {
		subscriptionID = &m.SubscriptionID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO members (
			id, plan, is_on_trial, subscription_id,
			words_today, words_this_month, words_total,
			tokens_today, tokens_this_month, tokens_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, string(m.Plan), m.IsOnTrial, subscriptionID,
		m.WordsToday, m.WordsThisMonth, m.WordsTotal,
		m.TokensToday, m.TokensThisMonth, m.TokensTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// UpdateMemberByID implements membership.Store.
func (s *Store) UpdateMemberByID(ctx context.Context, userID string, upd membership.MemberUpdate) error {
	return s.update(ctx, "id", userID, upd)
}

// UpdateMemberBySubscription implements membership.Store.
func (s *Store) UpdateMemberBySubscription(ctx context.Context, subscriptionID string, upd membership.MemberUpdate) error {
	return s.update(ctx, "subscription_id", subscriptionID, upd)
}

// update applies a partial update by the given lookup column. COALESCE keeps
// columns whose update field is nil; the subscription id is cleared by
// passing setSubscription with a NULL value.
func (s *Store) update(ctx context.Context, column, key string, upd membership.MemberUpdate) error {
	var plan *string
	if upd.Plan != nil {
		v := string(*upd.Plan)
		plan = &v
	}

	setSubscription := upd.SubscriptionID != nil
	var subscriptionID *string
	if setSubscription && *upd.SubscriptionID != "" {
		subscriptionID = upd.SubscriptionID
	}

	query := fmt.Sprintf(
		`UPDATE members SET
			plan = COALESCE($2, plan),
			is_on_trial = COALESCE($3, is_on_trial),
			subscription_id = CASE WHEN $4 THEN $5 ELSE subscription_id END,
			updated_at = now()
		WHERE %s = $1`, column)

	tag, err := s.pool.Exec(ctx, query, key, plan, upd.IsOnTrial, setSubscription, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return membership.ErrMemberNotFound
	}
	return nil
}
