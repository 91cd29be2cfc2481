package session

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewHistory returns a postgres-backed history on pool, otherwise in-memory.
func NewHistory(ctx context.Context, pool *pgxpool.Pool) (History, error) {
	if pool == nil {
		return NewInMemoryHistory(), nil
	}
	return NewPostgresHistory(ctx, pool)
}
