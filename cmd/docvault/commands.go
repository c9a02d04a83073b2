package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docvault/internal/config"
	"docvault/internal/ingest"
	"docvault/internal/storage"
)

var ingestUser string

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Index PDF files into the local store",
	Long: `Index PDF files into the local store without going through the server.

Examples:
  docvault ingest --user alice report.pdf
  docvault ingest --user alice *.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		_, ing, _, err := buildPipeline(cfg, store)
		if err != nil {
			return err
		}

		files := make([]ingest.File, 0, len(args))
		for _, arg := range args {
			path, err := copyIntoDataDir(cfg.Storage.DataDir, ingestUser, arg)
			if err != nil {
				return err
			}
			files = append(files, ingest.File{Name: filepath.Base(arg), Path: path})
		}

		results := ing.IngestBatch(cmd.Context(), ingestUser, files)
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Name, res.Err)
				continue
			}
			fmt.Fprintf(os.Stdout, "✓ %s (%s)\n", res.Name, res.DocumentID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

func copyIntoDataDir(dataDir, owner, src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", src, err)
	}
	dst := filepath.Join(dataDir, fmt.Sprintf("user_%s_%s.pdf", owner, uuid.NewString()))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", dst, err)
	}
	return dst, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docvault server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintln(os.Stdout, "server: stopped")
			return nil
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			fmt.Fprintf(os.Stdout, "server: running on port %d\n", cfg.Server.Port)
		} else {
			fmt.Fprintf(os.Stdout, "server: error (HTTP %d)\n", resp.StatusCode)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestUser, "user", "local", "owner id to index the files under")
}
