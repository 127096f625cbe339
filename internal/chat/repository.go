package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB defines what the repository needs from the database pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements chat data access operations.
type Repository struct {
	db DB
}

// NewRepository creates a new chat repository.
func NewRepository(db DB) *Repository {
	return &Repository{
		db: db,
	}
}

// InsertMessage persists a chat message and returns it with its assigned id.
func (r *Repository) InsertMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (sender, body)
		 VALUES ($1, $2)
		 RETURNING id, sender, body, created_at`,
		req.Sender, req.Text,
	)

	var msg Message
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Text, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns the most recent messages in chronological order.
func (r *Repository) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, sender, body, created_at FROM (
		   SELECT id, sender, body, created_at
		   FROM chat_messages
		   ORDER BY id DESC
		   LIMIT $1
		 ) recent ORDER BY id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return msgs, nil
}

// DeleteMessage removes a message by id. Deleting an absent id is a no-op.
func (r *Repository) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// InsertCallSignal appends one entry to the call signaling log.
func (r *Repository) InsertCallSignal(ctx context.Context, req SignalCallRequest) (*CallSignal, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO call_signals (caller, kind, payload)
		 VALUES ($1, $2, $3)
		 RETURNING id, caller, kind, payload, created_at`,
		req.Caller, req.Kind, req.Payload,
	)

	var sig CallSignal
	if err := row.Scan(&sig.ID, &sig.Caller, &sig.Kind, &sig.Payload, &sig.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert call signal: %w", err)
	}
	return &sig, nil
}

// LatestCallSignal returns the newest signaling entry, or nil when the log
// is empty.
func (r *Repository) LatestCallSignal(ctx context.Context) (*CallSignal, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, caller, kind, payload, created_at
		 FROM call_signals
		 ORDER BY id DESC
		 LIMIT 1`,
	)

	var sig CallSignal
	if err := row.Scan(&sig.ID, &sig.Caller, &sig.Kind, &sig.Payload, &sig.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call signal: %w", err)
	}
	return &sig, nil
}
