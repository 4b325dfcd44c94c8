package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/koehnden/dragon-lens/internal/feedback"
	"github.com/koehnden/dragon-lens/internal/model"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <payload.json>",
		Short: "Apply a human feedback submission to a completed run",
		Long: `Read a feedback payload from a JSON file and apply it: validate or
reject entities, correct extraction mistakes, fix product-brand
mappings, and set translation overrides. Every submission is archived
for audit.

Example payload:

  {
    "run_id": "a6e1...",
    "canonical_vertical": {"name": "SUV Cars"},
    "brands": [
      {"action": "validate", "name": "比亚迪"},
      {"action": "replace", "wrong_name": "BYD Auto", "correct_name": "比亚迪"}
    ],
    "mappings": [
      {"action": "add", "product_name": "宋PLUS", "brand_name": "比亚迪"}
    ]
  }`,
		Args: cobra.ExactArgs(1),
		RunE: runFeedback,
	}

	cmd.Flags().String("reviewer", "", "name of the human reviewer (required)")
	cmd.Flags().String("reviewer-model", "", "model the reviewer checked against, if any")
	_ = cmd.MarkFlagRequired("reviewer")

	return cmd
}

func runFeedback(cmd *cobra.Command, args []string) error {
	reviewer, _ := cmd.Flags().GetString("reviewer")
	reviewerModel, _ := cmd.Flags().GetString("reviewer-model")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read payload file: %w", err)
	}
	var payload model.FeedbackPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid payload JSON: %w", err)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := feedback.NewProcessor(store).Submit(cmd.Context(), &payload, reviewer, reviewerModel)
	if err != nil {
		return err
	}

	slog.Info("feedback applied",
		"run_id", result.RunID,
		"brands", result.Applied.Brands,
		"products", result.Applied.Products,
		"mappings", result.Applied.Mappings,
		"translations", result.Applied.Translations)
	for _, warning := range result.Warnings {
		slog.Warn("feedback item skipped", "detail", warning)
	}
	return nil
}
