package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/storage"
)

func candidatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Review entities flagged for human validation",
		Long: `Entities whose mention count fell below the auto-validate threshold are
queued for review instead of entering the knowledge base unchecked.
List the queue and resolve items as validated or rejected.`,
	}

	cmd.AddCommand(candidatesListCmd())
	cmd.AddCommand(candidatesResolveCmd())
	return cmd
}

func candidatesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List validation candidates for a vertical",
		RunE:  runCandidatesList,
	}

	cmd.Flags().String("vertical", "", "vertical name (required)")
	cmd.Flags().String("status", string(model.ValidationPending), "filter by status (PENDING, VALIDATED, REJECTED)")
	_ = cmd.MarkFlagRequired("vertical")

	return cmd
}

func runCandidatesList(cmd *cobra.Command, _ []string) error {
	vertical, _ := cmd.Flags().GetString("vertical")
	status, _ := cmd.Flags().GetString("status")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	kv, err := store.ResolveVertical(ctx, vertical)
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("unknown vertical %q", vertical)
	}
	if err != nil {
		return err
	}

	candidates, err := store.ListValidationCandidates(ctx, kv.ID, model.ValidationStatus(status))
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		slog.Info("no validation candidates", "vertical", vertical, "status", status)
		return nil
	}

	for _, c := range candidates {
		fmt.Printf("%d\t%s\t%s\tmentions=%d\t%s\n", c.ID, c.Type, c.Name, c.MentionCount, c.Status)
	}
	return nil
}

func candidatesResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <candidate-id>",
		Short: "Validate or reject a flagged entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runCandidatesResolve,
	}

	cmd.Flags().String("vertical", "", "vertical name (required)")
	cmd.Flags().Bool("reject", false, "reject instead of validate")
	cmd.Flags().String("by", "", "name of the reviewer (required)")
	cmd.Flags().String("reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("vertical")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}

func runCandidatesResolve(cmd *cobra.Command, args []string) error {
	vertical, _ := cmd.Flags().GetString("vertical")
	reject, _ := cmd.Flags().GetBool("reject")
	reviewedBy, _ := cmd.Flags().GetString("by")
	reason, _ := cmd.Flags().GetString("reason")

	candidateID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid candidate id %q", args[0])
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	kv, err := store.ResolveVertical(ctx, vertical)
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("unknown vertical %q", vertical)
	}
	if err != nil {
		return err
	}

	pending, err := store.ListValidationCandidates(ctx, kv.ID, model.ValidationPending)
	if err != nil {
		return err
	}
	var candidate *model.ValidationCandidate
	for i := range pending {
		if pending[i].ID == candidateID {
			candidate = &pending[i]
			break
		}
	}
	if candidate == nil {
		return fmt.Errorf("no pending candidate with id %d for vertical %q", candidateID, vertical)
	}

	status := model.ValidationValidated
	if reject {
		status = model.ValidationRejected
		if reason == "" {
			reason = "user_reject"
		}
	}
	if err := store.ResolveValidationCandidate(ctx, candidateID, status, reviewedBy, reason); err != nil {
		return err
	}

	// The resolution also updates the canonical record so future runs see it.
	if err := applyResolution(cmd, store, kv.ID, candidate, reject, reason); err != nil {
		return err
	}

	slog.Info("candidate resolved",
		"id", candidateID, "name", candidate.Name, "status", status, "reviewed_by", reviewedBy)
	return nil
}

func applyResolution(cmd *cobra.Command, store *storage.SQLiteStorage, kvID int64,
	candidate *model.ValidationCandidate, reject bool, reason string) error {
	ctx := cmd.Context()

	entity, err := store.FindCanonicalEntity(ctx, kvID, candidate.Type, candidate.Name)
	if errors.Is(err, common.ErrNotFound) {
		entity = nil
	} else if err != nil {
		return err
	}

	if !reject {
		if entity == nil {
			return fmt.Errorf("canonical entity %q no longer exists", candidate.Name)
		}
		return store.SetValidated(ctx, entity.ID, model.ValidationFeedback)
	}

	if err := store.AddRejectedEntity(ctx, &model.RejectedEntity{
		VerticalID: kvID,
		Type:       candidate.Type,
		Name:       candidate.Name,
		Reason:     reason,
	}); err != nil {
		return err
	}
	if entity != nil {
		return store.DeleteCanonicalEntity(ctx, entity.ID)
	}
	return nil
}
