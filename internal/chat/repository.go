package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// Append stores messages in one batch.
	Append(ctx context.Context, msgs ...Message) error
	// ListByThread returns the user's messages in a thread, oldest first.
	ListByThread(ctx context.Context, userID uuid.UUID, threadID string) ([]Message, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Append(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(
			`INSERT INTO chat_messages (id, user_id, thread_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.UserID, m.ThreadID, string(m.Role), m.Content, m.CreatedAt,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chat messages: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListByThread(ctx context.Context, userID uuid.UUID, threadID string) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, role, content, created_at
		 FROM chat_messages
		 WHERE user_id = $1 AND thread_id = $2
		 ORDER BY created_at ASC`, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		m := Message{UserID: userID, ThreadID: threadID}
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		m.Role = Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
