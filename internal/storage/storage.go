// Package storage is the Postgres-backed persistence layer behind the
// identity and rating lookups the lobby needs, plus the hand-off audit
// rows cmd/historiand writes. It holds no live lobby state — invites and
// subscriptions stay in memory per spec.md's non-goals — only the durable
// user records those lookups resolve against and the audit trail of
// completed hand-offs.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool. Unlike the teacher's package-level
// *pgxpool.Pool global, Store is constructed explicitly and threaded
// through the components that need it, so tests can substitute a fake
// without touching package state.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool against dsn and verifies it with a short-lived
// ping, mirroring the teacher's ConnectDB startup check.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parsing dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("storage: creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LookupUser satisfies internal/identitysvc.UserLookup: it resolves a
// member's display name, role set, and verification flag.
func (s *Store) LookupUser(ctx context.Context, userID string) (username string, roles []string, verified bool, err error) {
	const q = `SELECT username, is_admin, is_verified FROM users WHERE id = $1`
	var isAdmin bool
	row := s.pool.QueryRow(ctx, q, userID)
	if err := row.Scan(&username, &isAdmin, &verified); err != nil {
		return "", nil, false, fmt.Errorf("storage: looking up user %s: %w", userID, err)
	}
	if isAdmin {
		roles = append(roles, "owner")
	}
	return username, roles, verified, nil
}

// leaderboardColumn maps a leaderboard id to its rating column, mirroring
// the teacher's per-mode Elo fields (elo_1v1, elo_4p, elo_7p8p) plus a
// catch-all "infinite" column for variants without a dedicated
// leaderboard.
var leaderboardColumn = map[string]string{
	"1v1":      "elo_1v1",
	"4p":       "elo_4p",
	"7p8p":     "elo_7p8p",
	"infinite": "elo_infinite",
}

// Rating satisfies internal/invite.RatingProvider.
func (s *Store) Rating(ctx context.Context, userID, leaderboardID string) (int, error) {
	column, ok := leaderboardColumn[leaderboardID]
	if !ok {
		return 0, fmt.Errorf("storage: unknown leaderboard %q", leaderboardID)
	}
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, column)
	var rating int
	row := s.pool.QueryRow(ctx, q, userID)
	if err := row.Scan(&rating); err != nil {
		return 0, fmt.Errorf("storage: rating lookup for %s on %s: %w", userID, leaderboardID, err)
	}
	return rating, nil
}

// RecordHandoffAudit persists a completed invite hand-off event — the only
// invite-related thing this package ever writes, since live invites
// themselves stay in memory per spec.md's persistence non-goal.
func (s *Store) RecordHandoffAudit(ctx context.Context, gameID, inviteID, ownerKey, accepterKey, variant, rated string, at time.Time) error {
	const q = `
		INSERT INTO invite_handoff_audit (game_id, invite_id, owner_key, accepter_key, variant, rated, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, q, gameID, inviteID, ownerKey, accepterKey, variant, rated, at)
	if err != nil {
		return fmt.Errorf("storage: recording handoff audit for game %s: %w", gameID, err)
	}
	return nil
}
