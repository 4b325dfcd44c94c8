package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [answer files...]",
		Short: "Process a batch of collected answers as one tracking run",
		Long: `Create a run for a vertical, ingest the given answer files (one answer
per file), extract entities from every answer, and consolidate the
results into the knowledge base.

Use --answers-dir to ingest every .txt file in a directory instead of
listing files individually.`,
		RunE: runRun,
	}

	cmd.Flags().String("vertical", "", "vertical name, e.g. \"SUV Cars\" (required)")
	cmd.Flags().String("description", "", "vertical description used in prompts")
	cmd.Flags().String("model", "", "name of the model that generated the answers")
	cmd.Flags().String("answers-dir", "", "directory of .txt answer files")
	cmd.Flags().Bool("no-consolidate", false, "stop after extraction, skip consolidation")
	_ = cmd.MarkFlagRequired("vertical")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	vertical, _ := cmd.Flags().GetString("vertical")
	description, _ := cmd.Flags().GetString("description")
	answerModel, _ := cmd.Flags().GetString("model")
	answersDir, _ := cmd.Flags().GetString("answers-dir")
	noConsolidate, _ := cmd.Flags().GetBool("no-consolidate")

	files := append([]string(nil), args...)
	if answersDir != "" {
		matches, err := filepath.Glob(filepath.Join(answersDir, "*.txt"))
		if err != nil {
			return fmt.Errorf("failed to scan answers directory: %w", err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no answer files given")
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := newEngine(store)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	run, err := eng.StartRun(ctx, vertical, description)
	if err != nil {
		return err
	}
	slog.Info("run created", "run_id", run.ID, "vertical", vertical, "answers", len(files))

	for _, file := range files {
		text, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read answer file %s: %w", file, err)
		}
		if _, err := eng.AddAnswer(ctx, run.ID, string(text), answerModel); err != nil {
			return err
		}
	}

	if err := eng.ProcessRun(ctx, run.ID); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	slog.Info("extraction completed", "run_id", run.ID)

	if noConsolidate {
		slog.Info("skipping consolidation", "run_id", run.ID)
		return nil
	}

	result, err := eng.ConsolidateRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("consolidation failed: %w", err)
	}
	if result.BrandsFlagged+result.ProductsFlagged > 0 {
		slog.Info("entities queued for review, see 'dragonlens candidates list'",
			"brands", result.BrandsFlagged, "products", result.ProductsFlagged)
	}

	return nil
}
