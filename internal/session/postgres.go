package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresHistory persists thread transcripts in PostgreSQL on a pool owned
// by the caller.
type PostgresHistory struct {
	pool *pgxpool.Pool
}

func NewPostgresHistory(ctx context.Context, pool *pgxpool.Pool) (*PostgresHistory, error) {
	if pool == nil {
		return nil, errors.New("session: postgres pool is nil")
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS conversation_turns (
			seq BIGSERIAL PRIMARY KEY,
			thread_id TEXT NOT NULL,
			user_message TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`); err != nil {
		return nil, fmt.Errorf("init conversation_turns: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_conversation_turns_thread_seq ON conversation_turns (thread_id, seq);`); err != nil {
		return nil, fmt.Errorf("init conversation_turns index: %w", err)
	}
	return &PostgresHistory{pool: pool}, nil
}

func (h *PostgresHistory) Append(ctx context.Context, threadID, userMessage, assistantResponse string) (Turn, error) {
	if strings.TrimSpace(threadID) == "" {
		return Turn{}, ErrInvalidThread
	}
	turn := Turn{UserMessage: userMessage, AssistantResponse: assistantResponse}
	var seq int64
	err := h.pool.QueryRow(ctx,
		`INSERT INTO conversation_turns (thread_id, user_message, assistant_response)
		 VALUES ($1, $2, $3) RETURNING seq, created_at`,
		threadID, userMessage, assistantResponse,
	).Scan(&seq, &turn.CreatedAt)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	turn.Seq = uint64(seq)
	return turn, nil
}

func (h *PostgresHistory) Get(ctx context.Context, threadID string) ([]Turn, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT seq, user_message, assistant_response, created_at
		 FROM conversation_turns WHERE thread_id=$1 ORDER BY seq ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := make([]Turn, 0)
	for rows.Next() {
		var (
			t   Turn
			seq int64
		)
		if err := rows.Scan(&seq, &t.UserMessage, &t.AssistantResponse, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Seq = uint64(seq)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (h *PostgresHistory) Clear(ctx context.Context, threadID string) (int, error) {
	tag, err := h.pool.Exec(ctx, `DELETE FROM conversation_turns WHERE thread_id=$1`, threadID)
	if err != nil {
		return 0, fmt.Errorf("clear thread: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (h *PostgresHistory) Threads(ctx context.Context) (int, error) {
	var n int64
	if err := h.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT thread_id) FROM conversation_turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count threads: %w", err)
	}
	return int(n), nil
}

// Close leaves the shared pool open.
func (h *PostgresHistory) Close() error { return nil }
