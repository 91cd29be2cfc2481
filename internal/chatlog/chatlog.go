// Package chatlog keeps the process-wide log of answered chat messages
// served by GET /chat/history.
package chatlog

import (
	"sync"
	"time"
)

// Item is one answered chat message.
type Item struct {
	MessageID   string    `json:"message_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	ThreadID    string    `json:"thread_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Buffer is an append-only chat log. With a positive capacity the oldest
// items are dropped once the buffer is full.
type Buffer struct {
	mu       sync.RWMutex
	items    []Item
	capacity int
}

func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{capacity: capacity}
}

func (b *Buffer) Append(item Item) {
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	if b.capacity > 0 && len(b.items) > b.capacity {
		drop := len(b.items) - b.capacity
		b.items = append(b.items[:0:0], b.items[drop:]...)
	}
}

// Recent returns up to limit items, newest first. limit <= 0 returns none.
func (b *Buffer) Recent(limit int) []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit > len(b.items) {
		limit = len(b.items)
	}
	if limit < 0 {
		limit = 0
	}
	out := make([]Item, 0, limit)
	for i := len(b.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.items[i])
	}
	return out
}

// Last returns the most recent item.
func (b *Buffer) Last() (Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.items) == 0 {
		return Item{}, false
	}
	return b.items[len(b.items)-1], true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Clear empties the log and reports how many items it held.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.items)
	b.items = nil
	return n
}
