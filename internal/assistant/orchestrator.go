// Package assistant runs one chat turn: it recalls what is known about the
// user and the thread, grounds the reply in a web search, asks the model,
// and remembers the exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/shopchat/internal/completion"
	"github.com/ent0n29/shopchat/internal/logging"
	"github.com/ent0n29/shopchat/internal/memory"
	"github.com/ent0n29/shopchat/internal/observability"
	"github.com/ent0n29/shopchat/internal/policy"
	"github.com/ent0n29/shopchat/internal/prompt"
	"github.com/ent0n29/shopchat/internal/search"
	"github.com/ent0n29/shopchat/internal/session"
)

// ErrSearchFailed is returned when even the direct-search fallback fails.
var ErrSearchFailed = errors.New("assistant: search failed")

const (
	defaultSearchTimeout     = 15 * time.Second
	defaultCompletionTimeout = 45 * time.Second
	persistTimeout           = 5 * time.Second
)

// Reply sources.
const (
	SourceCompletion = "completion"
	SourceDirect     = "direct_search"
	SourceError      = "error"
	SourceEmpty      = "empty_query"
)

// Turn outcomes reported to metrics.
const (
	outcomeCompleted = "completed"
	outcomeDirect    = "direct"
	outcomeFallback  = "fallback"
	outcomeFailed    = "failed"
	outcomeEmpty     = "empty"
	outcomeCanceled  = "canceled"
)

// Request is one user message addressed to a thread.
type Request struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Reply is the assistant's answer plus the ids it was filed under.
type Reply struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Source   string `json:"source"`
	Fallback bool   `json:"fallback"`
}

// ThreadDebug summarizes a thread for diagnostics.
type ThreadDebug struct {
	ThreadID          string         `json:"thread_id"`
	ConversationCount int            `json:"conversation_count"`
	HasHistory        bool           `json:"has_history"`
	TotalThreads      int            `json:"total_threads"`
	Recent            []session.Turn `json:"conversation_history"`
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Memory    memory.Store
	History   session.History
	Searcher  search.Searcher
	Completer completion.Completer // nil selects direct-search mode
	Interest  policy.InterestExtractor

	Language          string
	SearchTimeout     time.Duration
	CompletionTimeout time.Duration

	SearchProvider     string
	CompletionProvider string

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Orchestrator answers chat turns with conversation memory.
type Orchestrator struct {
	memory    memory.Store
	history   session.History
	searcher  search.Searcher
	completer completion.Completer
	interest  policy.InterestExtractor

	language          string
	searchTimeout     time.Duration
	completionTimeout time.Duration

	searchProvider     string
	completionProvider string

	metrics *observability.Metrics
	logger  *slog.Logger
	newID   func() string
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Memory == nil {
		return nil, errors.New("assistant: memory store is required")
	}
	if opts.History == nil {
		return nil, errors.New("assistant: history is required")
	}
	if opts.Searcher == nil {
		return nil, errors.New("assistant: searcher is required")
	}
	o := &Orchestrator{
		memory:             opts.Memory,
		history:            opts.History,
		searcher:           opts.Searcher,
		completer:          opts.Completer,
		interest:           opts.Interest,
		language:           opts.Language,
		searchTimeout:      opts.SearchTimeout,
		completionTimeout:  opts.CompletionTimeout,
		searchProvider:     opts.SearchProvider,
		completionProvider: opts.CompletionProvider,
		metrics:            opts.Metrics,
		logger:             logging.OrDiscard(opts.Logger),
		newID:              uuid.NewString,
	}
	if o.interest == nil {
		o.interest = policy.KeywordExtractor(policy.DefaultProductKeywords)
	}
	if o.searchTimeout <= 0 {
		o.searchTimeout = defaultSearchTimeout
	}
	if o.completionTimeout <= 0 {
		o.completionTimeout = defaultCompletionTimeout
	}
	if o.completionProvider == "" {
		o.completionProvider = completion.ProviderNone
		if o.completer != nil {
			o.completionProvider = "custom"
		}
	}
	if o.searchProvider == "" {
		o.searchProvider = search.ProviderDuckDuckGo
	}
	return o, nil
}

// CompletionProvider names the configured completion provider.
func (o *Orchestrator) CompletionProvider() string { return o.completionProvider }

// SearchProvider names the configured search provider.
func (o *Orchestrator) SearchProvider() string { return o.searchProvider }

// Respond answers one chat turn.
//
// The reply text is never empty. A non-nil error means the direct-search
// fallback failed too (ErrSearchFailed) or ctx was canceled; Text still
// carries a message fit for the user.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (Reply, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		o.metrics.ObserveTurn(outcomeEmpty)
		return Reply{Text: prompt.EmptyQueryMessage, ThreadID: req.ThreadID, UserID: req.UserID, Source: SourceEmpty}, nil
	}

	started := time.Now()
	defer func() { o.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started)) }()

	reply := Reply{
		ThreadID: o.idOrNew(req.ThreadID),
		UserID:   o.idOrNew(req.UserID),
	}
	log := o.logger.With("thread_id", reply.ThreadID, "user_id", reply.UserID)

	if o.completer == nil {
		text, err := o.directSearch(ctx, query)
		if err != nil {
			return o.failed(ctx, log, reply, err)
		}
		reply.Text, reply.Source = text, SourceDirect
		o.persist(ctx, log, reply, query, true)
		o.metrics.ObserveTurn(outcomeDirect)
		return reply, nil
	}

	facts, turns := o.recall(ctx, log, reply.ThreadID, reply.UserID, query)

	text, err := o.generate(ctx, query, facts, turns)
	if err == nil {
		reply.Text, reply.Source = text, SourceCompletion
		o.persist(ctx, log, reply, query, true)
		o.metrics.ObserveTurn(outcomeCompleted)
		return reply, nil
	}
	if ctx.Err() != nil {
		o.metrics.ObserveTurn(outcomeCanceled)
		reply.Text, reply.Source = prompt.SearchError(ctx.Err()), SourceError
		return reply, ctx.Err()
	}
	log.Warn("generation failed; using direct search", "error", err)

	text, err = o.directSearch(ctx, query)
	if err != nil {
		return o.failed(ctx, log, reply, err)
	}
	reply.Text, reply.Source, reply.Fallback = text, SourceDirect, true
	o.persist(ctx, log, reply, query, false)
	o.metrics.ObserveTurn(outcomeFallback)
	return reply, nil
}

// SearchProducts answers a single query without reading or writing memory.
// Failures are reported in the returned text.
func (o *Orchestrator) SearchProducts(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return prompt.EmptyQueryMessage
	}
	if o.completer != nil {
		text, err := o.generate(ctx, query, nil, nil)
		if err == nil {
			return text
		}
		if ctx.Err() != nil {
			return prompt.SearchError(ctx.Err())
		}
		o.logger.Warn("search generation failed; using direct search", "error", err)
	}
	text, err := o.directSearch(ctx, query)
	if err != nil {
		return prompt.SearchError(err)
	}
	return text
}

// ClearThread destroys a thread's history and reports how many turns it held.
func (o *Orchestrator) ClearThread(ctx context.Context, threadID string) (int, error) {
	n, err := o.history.Clear(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("clear thread %s: %w", threadID, err)
	}
	o.logger.Info("thread cleared", "thread_id", threadID, "deleted", n)
	return n, nil
}

// ClearUserMemory forgets every fact remembered about userID.
func (o *Orchestrator) ClearUserMemory(ctx context.Context, userID string) (int, error) {
	n, err := o.memory.Clear(ctx, memory.UserNamespace(userID))
	if err != nil {
		return 0, fmt.Errorf("clear memory for %s: %w", userID, err)
	}
	return n, nil
}

// UserFacts returns the facts remembered about userID that match query.
func (o *Orchestrator) UserFacts(ctx context.Context, userID, query string) ([]memory.Fact, error) {
	return o.memory.Search(ctx, memory.UserNamespace(userID), query)
}

// ThreadDebug reports a thread's size and its most recent turns, oldest first.
func (o *Orchestrator) ThreadDebug(ctx context.Context, threadID string, limit int) (ThreadDebug, error) {
	turns, err := o.history.Get(ctx, threadID)
	if err != nil {
		return ThreadDebug{}, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	total, err := o.history.Threads(ctx)
	if err != nil {
		return ThreadDebug{}, fmt.Errorf("count threads: %w", err)
	}
	recent := turns
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return ThreadDebug{
		ThreadID:          threadID,
		ConversationCount: len(turns),
		HasHistory:        len(turns) > 0,
		TotalThreads:      total,
		Recent:            recent,
	}, nil
}

func (o *Orchestrator) recall(ctx context.Context, log *slog.Logger, threadID, userID, query string) ([]memory.Fact, []session.Turn) {
	started := time.Now()
	defer func() { o.metrics.ObserveTurnStage(observability.StageMemoryLookup, time.Since(started)) }()

	facts, err := o.memory.Search(ctx, memory.UserNamespace(userID), query)
	if err != nil {
		log.Warn("memory lookup failed", "error", err)
		facts = nil
	}
	turns, err := o.history.Get(ctx, threadID)
	if err != nil {
		log.Warn("history lookup failed", "error", err)
		turns = nil
	}
	return facts, turns
}

func (o *Orchestrator) generate(ctx context.Context, query string, facts []memory.Fact, turns []session.Turn) (string, error) {
	results, err := o.search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}

	req := completion.Request{
		System: prompt.SystemPrompt(o.language, prompt.BuildMemoryContext(facts), prompt.BuildHistoryContext(turns)),
		Messages: []completion.Message{
			{Role: completion.RoleUser, Content: prompt.UserMessage(query, results)},
		},
	}

	cctx, cancel := context.WithTimeout(ctx, o.completionTimeout)
	defer cancel()
	started := time.Now()
	resp, err := o.completer.Complete(cctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = completion.ErrEmptyResponse
	}
	elapsed := time.Since(started)
	o.metrics.ObserveCapability("completion", o.completionProvider, elapsed, err)
	o.metrics.ObserveTurnStage(observability.StageCompletion, elapsed)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (o *Orchestrator) search(ctx context.Context, query string) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, o.searchTimeout)
	defer cancel()
	started := time.Now()
	results, err := o.searcher.Search(sctx, prompt.SearchQuery(query))
	elapsed := time.Since(started)
	o.metrics.ObserveCapability("search", o.searchProvider, elapsed, err)
	o.metrics.ObserveTurnStage(observability.StageSearch, elapsed)
	return results, err
}

func (o *Orchestrator) directSearch(ctx context.Context, query string) (string, error) {
	results, err := o.search(ctx, query)
	if err != nil {
		return "", err
	}
	return prompt.DirectSearchResult(query, results), nil
}

func (o *Orchestrator) failed(ctx context.Context, log *slog.Logger, reply Reply, err error) (Reply, error) {
	reply.Text, reply.Source = prompt.SearchError(err), SourceError
	if ctx.Err() != nil {
		o.metrics.ObserveTurn(outcomeCanceled)
		return reply, ctx.Err()
	}
	log.Error("direct search failed", "error", err)
	o.metrics.ObserveTurn(outcomeFailed)
	return reply, fmt.Errorf("%w: %w", ErrSearchFailed, err)
}

// persist appends the turn and, when remember is set, the derived facts.
// Write failures are logged; the reply is already decided.
func (o *Orchestrator) persist(ctx context.Context, log *slog.Logger, reply Reply, query string, remember bool) {
	started := time.Now()
	defer func() { o.metrics.ObserveTurnStage(observability.StagePersist, time.Since(started)) }()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	_, err := o.history.Append(pctx, reply.ThreadID, query, reply.Text)
	o.metrics.ObserveMemoryWrite("turn", err)
	if err != nil {
		log.Error("append turn failed", "error", err)
	}
	if !remember {
		return
	}

	ns := memory.UserNamespace(reply.UserID)
	_, _ = o.putFact(pctx, log, ns, memory.Fact{Text: "사용자 질문: " + query, Subject: query, ThreadID: reply.ThreadID})
	if category, ok := o.interest(query); ok {
		_, _ = o.putFact(pctx, log, ns, memory.Fact{
			Text:     fmt.Sprintf("사용자가 %s에 관심을 보임: %s", category, query),
			Subject:  query,
			Category: category,
			ThreadID: reply.ThreadID,
		})
	}
}

// RememberFact stores an explicit fact about userID and returns its id. The
// text is redacted the same way as facts derived from chat turns.
func (o *Orchestrator) RememberFact(ctx context.Context, userID, text, category string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("assistant: fact text is empty")
	}
	log := o.logger.With("user_id", userID)
	return o.putFact(ctx, log, memory.UserNamespace(userID), memory.Fact{
		Text:     text,
		Category: strings.TrimSpace(category),
	})
}

func (o *Orchestrator) putFact(ctx context.Context, log *slog.Logger, ns memory.Namespace, fact memory.Fact) (string, error) {
	var textRedacted, subjectRedacted bool
	fact.Text, textRedacted = policy.RedactPII(fact.Text)
	fact.Subject, subjectRedacted = policy.RedactPII(fact.Subject)
	fact.PIIRedacted = textRedacted || subjectRedacted
	id, err := o.memory.Put(ctx, ns, fact)
	o.metrics.ObserveMemoryWrite("fact", err)
	if err != nil {
		log.Error("remember fact failed", "error", err)
		return "", fmt.Errorf("remember fact: %w", err)
	}
	return id, nil
}

func (o *Orchestrator) idOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return o.newID()
}
