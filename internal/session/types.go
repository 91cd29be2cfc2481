package session

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidThread is returned when a thread id is blank.
var ErrInvalidThread = errors.New("session: thread id is required")

// Turn is one user message paired with the assistant's reply.
type Turn struct {
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Seq               uint64    `json:"seq"`
	CreatedAt         time.Time `json:"created_at"`
}

// Pending reports whether the turn has no assistant response yet.
func (t Turn) Pending() bool {
	return t.AssistantResponse == ""
}

// History is the ordered, append-only conversation log of each thread.
type History interface {
	// Append adds a turn to threadID, creating the thread on first use.
	Append(ctx context.Context, threadID, userMessage, assistantResponse string) (Turn, error)
	// Get returns the turns of threadID in insertion order. Unknown threads yield an empty slice.
	Get(ctx context.Context, threadID string) ([]Turn, error)
	// Clear destroys threadID and reports how many turns it held.
	Clear(ctx context.Context, threadID string) (int, error)
	// Threads returns the number of live threads.
	Threads(ctx context.Context) (int, error)
	Close() error
}
