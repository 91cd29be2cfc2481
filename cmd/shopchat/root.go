package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ent0n29/shopchat/internal/assistant"
	"github.com/ent0n29/shopchat/internal/chatlog"
	"github.com/ent0n29/shopchat/internal/completion"
	"github.com/ent0n29/shopchat/internal/config"
	"github.com/ent0n29/shopchat/internal/httpapi"
	"github.com/ent0n29/shopchat/internal/logging"
	"github.com/ent0n29/shopchat/internal/memory"
	"github.com/ent0n29/shopchat/internal/observability"
	"github.com/ent0n29/shopchat/internal/search"
	"github.com/ent0n29/shopchat/internal/session"
)

const rootShortDesc = "Run the shopping chat agent API server"

const rootLongDesc = `Run the shopping chat agent API server.

The server answers product questions with web search results and an optional
completion model, and remembers each user's interests across conversations.
Settings come from the environment (and .env); flags override them.`

type rootCommander struct {
	envFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:           "shopchat",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cmder.envFile, "env-file", ".env", "Path to a .env file to load before reading the environment")
	flags.String("host", "", "Host to listen on (overrides APP_HOST)")
	flags.Int("port", 0, "Port to listen on (overrides APP_PORT)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("completion-provider", "", "Completion provider: auto, openai, anthropic, gemini, http, mock, none")
	flags.String("search-provider", "", "Search provider: duckduckgo, mock")
	flags.String("database-url", "", "Postgres URL for memory and history (default: in-memory)")

	for key, flag := range map[string]string{
		"host":                "host",
		"port":                "port",
		"log_level":           "log-level",
		"completion_provider": "completion-provider",
		"search_provider":     "search-provider",
		"database_url":        "database-url",
	} {
		_ = cmder.v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func (c *rootCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := logging.New(
		logging.WithLevel(cfg.LogLevel),
		logging.WithDebug(cfg.Debug && !cfg.IsProduction()),
		logging.WithSource(cfg.Debug && !cfg.IsProduction()),
		logging.WithJSON(strings.EqualFold(cfg.LogFormat, "json")),
	)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	memoryStore, err := memory.NewStore(ctx, pool)
	if err != nil {
		return fmt.Errorf("memory store init failed: %w", err)
	}
	defer memoryStore.Close()

	history, err := session.NewHistory(ctx, pool)
	if err != nil {
		return fmt.Errorf("history init failed: %w", err)
	}
	defer history.Close()

	storeMode := "in-memory"
	if pool != nil {
		storeMode = "postgres"
	}

	completer, completionProvider, err := completion.NewCompleter(completion.Config{
		Provider:        cfg.CompletionProvider,
		Temperature:     cfg.CompletionTemperature,
		MaxRetries:      cfg.CompletionMaxRetries,
		HTTPURL:         cfg.CompletionHTTPURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OpenAIModel:     cfg.OpenAIModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		GoogleAPIKey:    cfg.GoogleAPIKey,
		GeminiModel:     cfg.GeminiModel,
		GeminiBaseURL:   cfg.GeminiBaseURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("completion provider init failed: %w", err)
	}
	if completer == nil {
		logger.Warn("no completion provider available; answering with direct search results")
	}

	searcher, err := search.New(search.Config{
		Provider:        cfg.SearchProvider,
		BaseURL:         cfg.SearchBaseURL,
		HTMLURL:         cfg.SearchHTMLURL,
		Timeout:         cfg.SearchTimeout,
		MaxRetries:      1,
		CacheTTL:        cfg.SearchCacheTTL,
		CacheMaxEntries: cfg.SearchCacheMaxEntries,
	}, metrics)
	if err != nil {
		return fmt.Errorf("search provider init failed: %w", err)
	}
	if closer, ok := searcher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	orch, err := assistant.New(assistant.Options{
		Memory:             memoryStore,
		History:            history,
		Searcher:           searcher,
		Completer:          completer,
		Language:           cfg.ResponseLanguage,
		SearchTimeout:      cfg.SearchTimeout,
		CompletionTimeout:  cfg.CompletionTimeout,
		SearchProvider:     cfg.SearchProvider,
		CompletionProvider: completionProvider,
		Metrics:            metrics,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("assistant init failed: %w", err)
	}

	api := httpapi.New(cfg, orch, chatlog.New(cfg.ChatLogCapacity), metrics, logger)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("shopping chat agent api server started",
		"addr", cfg.BindAddr(),
		"completion_provider", completionProvider,
		"search_provider", cfg.SearchProvider,
		"store", storeMode,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("shopping chat agent api server stopped")
	return nil
}

// openPool connects the pool shared by the memory store and the thread
// history. It returns nil when no database is configured.
func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
