package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serapeum-ai/serapeum/internal/app"
	"github.com/serapeum-ai/serapeum/internal/config"
	"github.com/serapeum-ai/serapeum/internal/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest files or directories into the document store",
	Long: `Ingest reads each path and stores its content through the full
pipeline. Directories are walked recursively, picking up .txt, .md and
.pdf documents; PDF content is extracted to text before chunking. Files
already recorded in the dedup ledger are skipped, so re-running over
the same directory only processes new files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}

	var stored, degraded, skipped, failed int
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}

		result, err := a.Ingestor.IngestFile(ctx, file)
		if err != nil {
			failed++
			a.Logger.Error("ingestion failed", "file", file, "error", err)
			continue
		}
		switch result.Outcome {
		case rag.OutcomeStored:
			stored++
		case rag.OutcomeDegraded:
			degraded++
			a.Logger.Warn("ingested with failed enrichments",
				"file", file, "failed", result.FailedEnrichments)
		case rag.OutcomeSkipped:
			skipped++
		}
	}

	fmt.Printf("ingested %d file(s): %d stored, %d degraded, %d skipped, %d failed\n",
		len(files), stored, degraded, skipped, failed)
	if total, countErr := a.Vectors.Count(ctx); countErr == nil {
		fmt.Printf("document store holds %d document(s)\n", total)
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// collectFiles expands the argument list into regular files. Explicitly
// named files are taken as-is; directory walks only pick up text
// documents.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && isTextDocument(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}
	return files, nil
}

func isTextDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	default:
		return false
	}
}
