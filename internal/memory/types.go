package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// KindMemories is the namespace kind holding per-user long-term facts.
const KindMemories = "memories"

// ErrInvalidNamespace is returned when a namespace has no user id.
var ErrInvalidNamespace = errors.New("memory: namespace requires a user id")

// Namespace partitions facts. Two namespaces never share facts.
type Namespace struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
}

// UserNamespace returns the long-term memory namespace for userID.
func UserNamespace(userID string) Namespace {
	return Namespace{Kind: KindMemories, UserID: userID}
}

func (n Namespace) String() string {
	return n.Kind + "/" + n.UserID
}

func (n Namespace) valid() bool {
	return strings.TrimSpace(n.UserID) != ""
}

func (n Namespace) normalized() Namespace {
	if strings.TrimSpace(n.Kind) == "" {
		n.Kind = KindMemories
	}
	return n
}

// Fact is a single remembered statement about a user. Facts are immutable once stored.
// Subject is the user-supplied payload the statement is about; when set,
// queries match against it instead of the rendered Text.
type Fact struct {
	ID          string    `json:"id"`
	Namespace   Namespace `json:"namespace"`
	Text        string    `json:"text"`
	Subject     string    `json:"subject,omitempty"`
	Category    string    `json:"category,omitempty"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Seq         uint64    `json:"seq"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves long-term facts per namespace.
type Store interface {
	// Put stores fact in ns and returns its id.
	Put(ctx context.Context, ns Namespace, fact Fact) (string, error)
	// Search returns the facts of ns matching query in insertion order.
	// An empty query returns every fact of ns.
	Search(ctx context.Context, ns Namespace, query string) ([]Fact, error)
	// Clear removes every fact of ns and reports how many were removed.
	Clear(ctx context.Context, ns Namespace) (int, error)
	Close() error
}

// Matches reports whether fact is relevant to query.
//
// A fact matches when its subject contains the whole query, or any query term
// of at least two runes, or when its category appears in the query. Facts
// without a subject are matched on their text. Comparison is case-insensitive.
// An empty query matches everything.
func Matches(fact Fact, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	text := strings.ToLower(fact.matchText())
	if strings.Contains(text, q) {
		return true
	}
	if cat := strings.ToLower(strings.TrimSpace(fact.Category)); cat != "" && strings.Contains(q, cat) {
		return true
	}
	for _, term := range searchTerms(q) {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func (f Fact) matchText() string {
	if strings.TrimSpace(f.Subject) != "" {
		return f.Subject
	}
	return f.Text
}

// searchTerms splits a lowercased query into terms of two or more runes.
func searchTerms(q string) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '?', '!', '.', ',', ':', ';', '"', '\'', '(', ')':
			return true
		}
		return false
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
