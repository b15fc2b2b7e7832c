package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagekit/sage/internal/app"
	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/log"
)

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index documents into the knowledge base",
	Long: `Index reads text documents (.txt, .md) from the given files or
directories, embeds them, and stores them in the knowledge base.
Re-indexing a file replaces its previous content.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

// indexableExts are the file extensions the indexer accepts.
var indexableExts = map[string]bool{
	".txt": true,
	".md":  true,
}

func runIndex(parent context.Context, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	a, err := app.Setup(parent, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if a.Knowledge == nil {
		return errors.New("knowledge base unavailable, check database and embedder configuration")
	}

	var indexed int
	for _, path := range paths {
		n, err := indexPath(parent, a.Knowledge, path, logger)
		if err != nil {
			return err
		}
		indexed += n
	}

	logger.Info("indexing complete", "documents", indexed)
	return nil
}

// indexPath indexes a single file or walks a directory, returning the number
// of documents stored.
func indexPath(ctx context.Context, store *knowledge.Store, path string, logger log.Logger) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	if !info.IsDir() {
		if err := indexFile(ctx, store, path); err != nil {
			return 0, err
		}
		return 1, nil
	}

	var count int
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableExts[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if err := indexFile(ctx, store, p); err != nil {
			return err
		}
		logger.Debug("indexed", "file", p)
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walking %s: %w", path, err)
	}
	return count, nil
}

// indexFile stores one file as a document. The document ID is derived from
// the cleaned path so re-indexing overwrites rather than duplicates.
func indexFile(ctx context.Context, store *knowledge.Store, path string) error {
	content, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}

	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	doc := knowledge.Document{
		ID:      hex.EncodeToString(sum[:16]),
		Content: string(content),
		Metadata: map[string]string{
			"source": filepath.Clean(path),
			"type":   knowledge.SourceTypeFile,
		},
	}

	if err := store.Add(ctx, doc); err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}
	return nil
}
