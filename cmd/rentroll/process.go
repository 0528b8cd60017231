package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/cache"
	"github.com/stwalsh4118/rentroll/internal/config"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/services"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

type processOptions struct {
	outputPath  string
	cacheDB     string
	mimeType    string
	pretty      bool
	noAI        bool
	tenantsOnly bool
	verbose     bool
}

func newProcessCmd() *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Process a rent roll file and print the result as JSON",
		Long: `process runs the ingestion pipeline on one file. AI detection is used when
AI_ENABLED and AI_API_KEY are set in the environment, unless --no-ai is given.
With --cache-db, AI detections are cached in a local SQLite database so that
re-processing the same file skips the model calls.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Pretty-print JSON output")
	cmd.Flags().StringVar(&opts.cacheDB, "cache-db", "", "SQLite file caching AI detections between runs")
	cmd.Flags().StringVar(&opts.mimeType, "mime-type", "", "MIME type hint (default: from the file extension)")
	cmd.Flags().BoolVar(&opts.noAI, "no-ai", false, "Use heuristics only, even when AI is configured")
	cmd.Flags().BoolVar(&opts.tenantsOnly, "tenants-only", false, "Print only the extracted tenant records")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline decisions to stderr")

	return cmd
}

func runProcess(ctx context.Context, inputPath string, opts *processOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", inputPath)
		}
		return fmt.Errorf("failed to read input: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewCLI(opts.verbose, stderr)

	vocab, err := vocabulary.Load(cfg.Ingest.VocabularyPath)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}

	if opts.noAI {
		cfg.AI.Enabled = false
	}
	analyzer, err := ai.FromConfig(cfg.AI, log)
	if err != nil {
		return fmt.Errorf("failed to initialize AI analyzer: %w", err)
	}

	var detectionCache cache.Cache = cache.NewNop()
	if opts.cacheDB != "" {
		store, err := cache.OpenSQLite(opts.cacheDB, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		defer func() { _ = store.Close() }()
		if _, err := store.Purge(ctx); err != nil {
			log.Warn("Failed to purge expired cache entries", map[string]interface{}{
				"error": err.Error(),
			})
		}
		detectionCache = store
	}

	svc := services.NewPipeline(services.PipelineConfig{
		Vocabulary:               vocab,
		Analyzer:                 analyzer,
		Cache:                    detectionCache,
		HeaderMinConfidence:      cfg.Ingest.HeaderMinConfidence,
		AIHeaderAcceptConfidence: cfg.Ingest.AIHeaderAcceptConfidence,
		ClassifierMinConfidence:  cfg.Ingest.ClassifierMinConfidence,
	}, log)

	upload := services.Upload{
		FileName: filepath.Base(inputPath),
		MimeType: opts.mimeType,
		Data:     data,
	}
	if opts.verbose {
		upload.Progress = func(sheet string, done, total int) {
			if done == total || done%500 == 0 {
				log.Debug("Extracting rows", map[string]interface{}{
					"sheet": sheet,
					"done":  done,
					"total": total,
				})
			}
		}
	}

	result, err := svc.Process(ctx, upload)
	if err != nil {
		return err
	}

	var payload interface{} = result
	if opts.tenantsOnly {
		payload = result.ExtractedTenants
	}
	out, err := encode(payload, opts.pretty)
	if err != nil {
		return fmt.Errorf("serialization failed: %w", err)
	}

	if opts.outputPath != "" {
		if err := os.WriteFile(opts.outputPath, out, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else if _, err := stdout.Write(out); err != nil {
		return err
	}

	if !result.Success {
		for _, msg := range result.Errors {
			fmt.Fprintln(stderr, msg)
		}
		return fmt.Errorf("no rent roll data extracted from %s", upload.FileName)
	}
	return nil
}

func encode(v interface{}, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
