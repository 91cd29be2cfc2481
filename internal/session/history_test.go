package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestHistoryAppendGetInOrder(t *testing.T) {
	h := NewInMemoryHistory()
	ctx := context.Background()

	if _, err := h.Append(ctx, "t1", "iPhone 15", "iPhone 15는 ..."); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := h.Append(ctx, "t1", "가격은?", "약 125만원"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := h.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(got))
	}
	if got[0].UserMessage != "iPhone 15" || got[1].UserMessage != "가격은?" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Seq >= got[1].Seq {
		t.Fatalf("Seq not increasing: %d then %d", got[0].Seq, got[1].Seq)
	}
}

func TestHistoryUnknownThreadIsEmpty(t *testing.T) {
	h := NewInMemoryHistory()
	got, err := h.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Get() = %#v, want empty non-nil slice", got)
	}
}

func TestHistoryGetReturnsCopy(t *testing.T) {
	h := NewInMemoryHistory()
	ctx := context.Background()
	_, _ = h.Append(ctx, "t1", "q", "a")

	got, _ := h.Get(ctx, "t1")
	got[0].AssistantResponse = "mutated"

	again, _ := h.Get(ctx, "t1")
	if again[0].AssistantResponse != "a" {
		t.Fatalf("stored turn was mutated: %+v", again[0])
	}
}

func TestHistoryThreadsAreIsolated(t *testing.T) {
	h := NewInMemoryHistory()
	ctx := context.Background()
	_, _ = h.Append(ctx, "a", "q1", "r1")
	_, _ = h.Append(ctx, "b", "q2", "r2")

	got, _ := h.Get(ctx, "a")
	if len(got) != 1 || got[0].UserMessage != "q1" {
		t.Fatalf("thread a = %+v", got)
	}
	n, _ := h.Threads(ctx)
	if n != 2 {
		t.Fatalf("Threads() = %d, want 2", n)
	}
}

func TestHistoryClearIsIdempotent(t *testing.T) {
	h := NewInMemoryHistory()
	ctx := context.Background()
	_, _ = h.Append(ctx, "t1", "q", "a")
	_, _ = h.Append(ctx, "t1", "q2", "a2")

	n, err := h.Clear(ctx, "t1")
	if err != nil || n != 2 {
		t.Fatalf("Clear() = %d, %v; want 2, nil", n, err)
	}
	n, err = h.Clear(ctx, "t1")
	if err != nil || n != 0 {
		t.Fatalf("second Clear() = %d, %v; want 0, nil", n, err)
	}
	threads, _ := h.Threads(ctx)
	if threads != 0 {
		t.Fatalf("Threads() = %d, want 0", threads)
	}
}

func TestHistoryRejectsBlankThread(t *testing.T) {
	h := NewInMemoryHistory()
	if _, err := h.Append(context.Background(), " ", "q", "a"); err != ErrInvalidThread {
		t.Fatalf("Append() error = %v, want %v", err, ErrInvalidThread)
	}
}

func TestHistoryConcurrentAppendsAreNotLost(t *testing.T) {
	h := NewInMemoryHistory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.Append(ctx, "t1", fmt.Sprintf("q%d", i), "a"); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := h.Get(ctx, "t1")
	if len(got) != 100 {
		t.Fatalf("len(turns) = %d, want 100", len(got))
	}
	seen := make(map[string]bool, len(got))
	for i, turn := range got {
		if seen[turn.UserMessage] {
			t.Fatalf("duplicate turn %q", turn.UserMessage)
		}
		seen[turn.UserMessage] = true
		if i > 0 && got[i-1].Seq >= turn.Seq {
			t.Fatalf("turns out of order at %d", i)
		}
	}
}

func TestPostgresHistoryRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	defer pool.Close()
	h, err := NewPostgresHistory(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresHistory() error = %v", err)
	}

	thread := "pg-" + uuid.NewString()
	_, _ = h.Append(ctx, thread, "q1", "a1")
	_, _ = h.Append(ctx, thread, "q2", "a2")

	got, err := h.Get(ctx, thread)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 || got[0].UserMessage != "q1" {
		t.Fatalf("Get() = %+v", got)
	}
	n, err := h.Clear(ctx, thread)
	if err != nil || n != 2 {
		t.Fatalf("Clear() = %d, %v", n, err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pool.Ping() after Close() error = %v", err)
	}
}

func TestNewHistoryWithoutPoolIsInMemory(t *testing.T) {
	h, err := NewHistory(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewHistory() error = %v", err)
	}
	if _, ok := h.(*InMemoryHistory); !ok {
		t.Fatalf("NewHistory(nil) = %T, want *InMemoryHistory", h)
	}
}
