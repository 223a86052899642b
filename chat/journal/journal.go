// Package journal writes an append-only audit trail of conversation turns.
// The trail is never read back by the bot.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/relaybot/chat/transcript"
)

// Entry is one recorded turn.
type Entry struct {
	ConversationID uuid.UUID
	UserID         int64
	ChatID         int64
	Role           transcript.Role
	Content        string
	At             time.Time
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }

type row struct {
	ConversationID string    `db:"conversation_id"`
	UserID         int64     `db:"user_id"`
	ChatID         int64     `db:"chat_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

const insertTurn = `INSERT INTO turn_journal (conversation_id, user_id, chat_id, role, content, created_at)
VALUES (:conversation_id, :user_id, :chat_id, :role, :content, :created_at)`

// Postgres records entries in the turn_journal table.
type Postgres struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgres returns a recorder backed by db.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Record implements Recorder.
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	query, args, err := bind(toRow(e, p.now))
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("journal: insert turn: %w", err)
	}
	return nil
}

func toRow(e Entry, now func() time.Time) row {
	at := e.At
	if at.IsZero() {
		at = now()
	}
	return row{
		ConversationID: e.ConversationID.String(),
		UserID:         e.UserID,
		ChatID:         e.ChatID,
		Role:           string(e.Role),
		Content:        e.Content,
		CreatedAt:      at.UTC(),
	}
}

func bind(r row) (string, []any, error) {
	query, args, err := sqlx.Named(insertTurn, r)
	if err != nil {
		return "", nil, fmt.Errorf("journal: bind turn: %w", err)
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}
