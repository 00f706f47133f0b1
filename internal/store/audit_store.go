package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopclerk/shopclerk/internal/command"
	"github.com/shopclerk/shopclerk/internal/domain"
)

// TurnRecord is one audited turn: the raw input, the action selected for it,
// and the full ordered command list it produced.
type TurnRecord struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"sessionId"`
	Input     string            `json:"input"`
	ActionID  string            `json:"actionId,omitempty"`
	Commands  []command.Command `json:"commands"`
	Blocked   bool              `json:"blocked"`
	CreatedAt time.Time         `json:"createdAt"`
}

// AuditStore records sessions and their turns.
type AuditStore interface {
	// CreateSession records a new session's immutable identity.
	CreateSession(ctx context.Context, state *domain.SessionState) error

	// RecordTurn appends one turn to a session's audit trail.
	RecordTurn(ctx context.Context, rec *TurnRecord) error

	// ListTurns returns a session's turns in order. limit <= 0 means all.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)

	// GetSession loads a session's immutable identity as a fresh base state.
	GetSession(ctx context.Context, id string) (*domain.SessionState, error)

	// Close releases underlying resources.
	Close() error
}

// Replay reconstructs a session's state by re-applying every audited command
// in order. The result is byte-for-byte what the live session computed,
// because the reducer is the only mutation path.
func Replay(ctx context.Context, s AuditStore, base *domain.SessionState) (*domain.SessionState, error) {
	turns, err := s.ListTurns(ctx, base.ID, 0)
	if err != nil {
		return nil, err
	}
	state := base.Clone()
	for _, t := range turns {
		state, err = command.Apply(state, t.Commands)
		if err != nil {
			return nil, fmt.Errorf("replaying turn %d: %w", t.ID, err)
		}
	}
	return state, nil
}

// SQLiteAudit is the SQLite-backed audit store.
type SQLiteAudit struct {
	db *DB
}

// NewSQLiteAudit wraps an open database as an audit store.
func NewSQLiteAudit(db *DB) *SQLiteAudit {
	return &SQLiteAudit{db: db}
}

func (s *SQLiteAudit) CreateSession(ctx context.Context, state *domain.SessionState) error {
	_, err := s.db.SQL().ExecContext(ctx, `
		INSERT INTO sessions (id, mode, customer_id, currency, locale, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, state.ID, string(state.Mode), state.Context.CustomerID, state.Context.Currency, state.Context.Locale,
		state.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *SQLiteAudit) RecordTurn(ctx context.Context, rec *TurnRecord) error {
	cmds, err := json.Marshal(rec.Commands)
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := s.db.SQL().ExecContext(ctx, `
		INSERT INTO turns (session_id, input, action_id, commands, blocked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Input, rec.ActionID, string(cmds), boolToInt(rec.Blocked),
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording turn: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteAudit) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	q := `SELECT id, session_id, input, action_id, commands, blocked, created_at
		FROM turns WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.SQL().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var cmds string
		var blocked int
		var created string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Input, &rec.ActionID, &cmds, &blocked, &created); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal([]byte(cmds), &rec.Commands); err != nil {
			return nil, fmt.Errorf("decoding commands for turn %d: %w", rec.ID, err)
		}
		rec.Blocked = blocked != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSession loads a session's immutable identity as a fresh base state for
// replay.
func (s *SQLiteAudit) GetSession(ctx context.Context, id string) (*domain.SessionState, error) {
	var mode, customerID, currency, locale, created string
	err := s.db.SQL().QueryRowContext(ctx, `
		SELECT mode, customer_id, currency, locale, created_at FROM sessions WHERE id = ?
	`, id).Scan(&mode, &customerID, &currency, &locale, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	state := domain.NewSession(domain.Mode(mode), domain.SessionContext{
		CustomerID: customerID,
		Currency:   currency,
		Locale:     locale,
	})
	state.ID = id
	if t, perr := time.Parse(time.RFC3339, created); perr == nil {
		state.CreatedAt = t
		state.UpdatedAt = t
	}
	return state, nil
}

func (s *SQLiteAudit) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
