package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-process fact store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	seq   uint64
	facts map[Namespace][]Fact
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{facts: make(map[Namespace][]Fact)}
}

func (s *InMemoryStore) Put(ctx context.Context, ns Namespace, fact Fact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ns.valid() {
		return "", ErrInvalidNamespace
	}
	ns = ns.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	fact.Namespace = ns
	fact.Seq = s.seq
	s.facts[ns] = append(s.facts[ns], fact)
	return fact.ID, nil
}

func (s *InMemoryStore) Search(ctx context.Context, ns Namespace, query string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ns.valid() {
		return nil, ErrInvalidNamespace
	}
	ns = ns.normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.facts[ns]
	out := make([]Fact, 0, len(arr))
	for _, f := range arr {
		if Matches(f, query) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Clear(ctx context.Context, ns Namespace) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !ns.valid() {
		return 0, fmt.Errorf("clear %s: %w", ns, ErrInvalidNamespace)
	}
	ns = ns.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.facts[ns])
	delete(s.facts, ns)
	return n, nil
}

// Len returns the number of facts held for ns.
func (s *InMemoryStore) Len(ns Namespace) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts[ns.normalized()])
}

func (s *InMemoryStore) Close() error { return nil }
