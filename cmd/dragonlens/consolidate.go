package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func consolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate <run-id>",
		Short: "Consolidate a completed run into the knowledge base",
		Long: `Merge the extraction results of a completed run: deduplicate entity
names into canonical records, write mention ranks, resolve product-brand
mappings, and retract off-vertical brands. Runs that skipped
consolidation (--no-consolidate) are picked up here.`,
		Args: cobra.ExactArgs(1),
		RunE: runConsolidate,
	}
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := newEngine(store)
	if err != nil {
		return err
	}

	if _, err := eng.ConsolidateRun(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("consolidation failed: %w", err)
	}
	return nil
}
