package store

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

// Session validation failures, mapped to client error codes by the router.
var (
	ErrSessionMissing = errors.New("session missing")
	ErrSessionUsed    = errors.New("session already used")
	ErrSessionExpired = errors.New("session expired")
)

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Single-player game sessions
------------------------------*/

// CreateSession inserts a fresh single-use session and returns its id.
func (db *DB) CreateSession(ctx context.Context, seed string, expiresAt time.Time) (string, error) {
	var id string
	err := db.QueryRow(ctx, `
        INSERT INTO game_sessions(seed, expires_at)
        VALUES ($1, $2)
        RETURNING id
    `, seed, expiresAt).Scan(&id)
	return id, err
}

// LookupSession runs the session validity checks without consuming it.
func (db *DB) LookupSession(ctx context.Context, id string) error {
	var used bool
	var expiresAt time.Time
	err := db.QueryRow(ctx, `
        SELECT used, expires_at FROM game_sessions WHERE id = $1
    `, id).Scan(&used, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionMissing
		}
		return err
	}
	if used {
		return ErrSessionUsed
	}
	if time.Now().After(expiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// ConsumeSession validates a session and marks it used in one transaction,
// so two submissions racing on the same session cannot both pass.
func (db *DB) ConsumeSession(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	var used bool
	var expiresAt time.Time
	err = tx.QueryRow(ctx, `
        SELECT used, expires_at FROM game_sessions WHERE id = $1 FOR UPDATE
    `, id).Scan(&used, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionMissing
		}
		return err
	}
	if used {
		return ErrSessionUsed
	}
	if time.Now().After(expiresAt) {
		return ErrSessionExpired
	}
	if _, err := tx.Exec(ctx, `UPDATE game_sessions SET used = true WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteExpiredSessions sweeps sessions past their expiry. Invoked
// opportunistically at session creation; there is no background job.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM game_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

/* -----------------------------
   Leaderboard scores
------------------------------*/

type ScoreRow struct {
	Rank      int       `json:"rank"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsertScore records a validated score for a consumed session.
func (db *DB) InsertScore(ctx context.Context, sessionID string, score int, metadata map[string]any) error {
	meta := metadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err := db.Exec(ctx, `
        INSERT INTO scores(game_session_id, score, metadata)
        VALUES ($1, $2, $3)
    `, sessionID, score, meta)
	return err
}

// TopScores returns the highest scores in rank order.
func (db *DB) TopScores(ctx context.Context, limit int) ([]ScoreRow, error) {
	rows, err := db.Query(ctx, `
        SELECT score, created_at
          FROM scores
         ORDER BY score DESC, created_at DESC
         LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ScoreRow{}
	for rows.Next() {
		var r ScoreRow
		if err := rows.Scan(&r.Score, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out, rows.Err()
}
