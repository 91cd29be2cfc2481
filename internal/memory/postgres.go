package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists long-term facts in PostgreSQL. The pool is owned by
// the caller and may be shared with other stores.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("memory: postgres pool is nil")
	}
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_facts (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			ns_kind TEXT NOT NULL,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			thread_id TEXT NOT NULL DEFAULT '',
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`ALTER TABLE memory_facts ADD COLUMN IF NOT EXISTS subject TEXT NOT NULL DEFAULT '';`,
		`CREATE INDEX IF NOT EXISTS idx_memory_facts_ns_seq ON memory_facts (ns_kind, user_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, ns Namespace, fact Fact) (string, error) {
	if !ns.valid() {
		return "", ErrInvalidNamespace
	}
	ns = ns.normalized()
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_facts (id, ns_kind, user_id, text, subject, category, thread_id, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fact.ID,
		ns.Kind,
		ns.UserID,
		fact.Text,
		fact.Subject,
		fact.Category,
		fact.ThreadID,
		fact.PIIRedacted,
		fact.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save fact: %w", err)
	}
	return fact.ID, nil
}

// Search narrows candidates in SQL with ILIKE, then applies Matches so both
// backends agree on which facts are relevant.
func (s *PostgresStore) Search(ctx context.Context, ns Namespace, query string) ([]Fact, error) {
	if !ns.valid() {
		return nil, ErrInvalidNamespace
	}
	ns = ns.normalized()

	sql := `SELECT seq, id, text, subject, category, thread_id, pii_redacted, created_at
		 FROM memory_facts WHERE ns_kind=$1 AND user_id=$2`
	args := []any{ns.Kind, ns.UserID}

	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" {
		patterns := []string{"%" + escapeLike(q) + "%"}
		for _, term := range searchTerms(q) {
			patterns = append(patterns, "%"+escapeLike(term)+"%")
		}
		args = append(args, patterns, q)
		sql += ` AND ((CASE WHEN subject <> '' THEN subject ELSE text END) ILIKE ANY($3) OR (category <> '' AND strpos($4, lower(category)) > 0))`
	}
	sql += ` ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	items := make([]Fact, 0)
	for rows.Next() {
		var (
			f   Fact
			seq int64
		)
		if err := rows.Scan(&seq, &f.ID, &f.Text, &f.Subject, &f.Category, &f.ThreadID, &f.PIIRedacted, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		f.Seq = uint64(seq)
		f.Namespace = ns
		if Matches(f, query) {
			items = append(items, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Clear(ctx context.Context, ns Namespace) (int, error) {
	if !ns.valid() {
		return 0, fmt.Errorf("clear %s: %w", ns, ErrInvalidNamespace)
	}
	ns = ns.normalized()
	tag, err := s.pool.Exec(ctx, `DELETE FROM memory_facts WHERE ns_kind=$1 AND user_id=$2`, ns.Kind, ns.UserID)
	if err != nil {
		return 0, fmt.Errorf("clear facts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close leaves the shared pool open; its owner closes it.
func (s *PostgresStore) Close() error { return nil }

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
