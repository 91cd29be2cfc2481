package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryHistory keeps thread transcripts in process memory.
type InMemoryHistory struct {
	mu      sync.RWMutex
	seq     uint64
	threads map[string][]Turn
	now     func() time.Time
}

func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{
		threads: make(map[string][]Turn),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *InMemoryHistory) Append(ctx context.Context, threadID, userMessage, assistantResponse string) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	if strings.TrimSpace(threadID) == "" {
		return Turn{}, ErrInvalidThread
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	turn := Turn{
		UserMessage:       userMessage,
		AssistantResponse: assistantResponse,
		Seq:               h.seq,
		CreatedAt:         h.now(),
	}
	h.threads[threadID] = append(h.threads[threadID], turn)
	return turn, nil
}

func (h *InMemoryHistory) Get(ctx context.Context, threadID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return clone(h.threads[threadID]), nil
}

func (h *InMemoryHistory) Clear(ctx context.Context, threadID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.threads[threadID])
	delete(h.threads, threadID)
	return n, nil
}

func (h *InMemoryHistory) Threads(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.threads), nil
}

func (h *InMemoryHistory) Close() error { return nil }

func clone(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
