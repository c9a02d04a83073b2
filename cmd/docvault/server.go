package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"docvault/internal/api"
	"docvault/internal/chunker"
	"docvault/internal/config"
	"docvault/internal/embedding"
	"docvault/internal/ingest"
	"docvault/internal/llm"
	"docvault/internal/pdfex"
	"docvault/internal/search"
	"docvault/internal/storage"
	"docvault/internal/vecstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docvault server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// newEmbedder builds the configured embedder implementation.
func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "process":
		return embedding.NewProcessEmbedder(cfg.WorkerCommand)
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.BaseURL, os.Getenv(cfg.APIKeyEnv), cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding type %q", cfg.Type)
	}
}

func buildPipeline(cfg config.Config, store *storage.Store) (*search.Service, *ingest.Ingestor, vecstore.Store, error) {
	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building embedder: %w", err)
	}

	vectors := vecstore.NewSQLiteStore(store.DB())
	gen := llm.NewRetrier(
		llm.NewOpenAIGenerator(cfg.LLM.BaseURL, os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.Model),
		cfg.Search.MaxAttempts,
	)

	svc := search.NewService(embedder, vectors, store, gen, cfg.Search.TopK)
	ch := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.MinPageChars)
	ing := ingest.New(pdfex.PDFExtractor{}, ch, embedder, vectors, store)

	return svc, ing, vectors, nil
}

func runServer() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	svc, ing, vectors, err := buildPipeline(cfg, store)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Vectors:  vectors,
		Ingestor: ing,
		Searcher: svc,
		Token:    cfg.Server.Token,
		DataDir:  cfg.Storage.DataDir,
	})

	// MCP over stdio in a goroutine. Stdio MCP serves the machine's local
	// user; documents are scoped under that fixed id.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Searcher: svc,
		UserID:   localUserID(),
	})
	stdioSrv := mcpserver.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("docvault listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func localUserID() string {
	if u := os.Getenv("DOCVAULT_USER"); u != "" {
		return u
	}
	return "local"
}
