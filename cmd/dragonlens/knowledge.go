package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koehnden/dragon-lens/internal/common"
	"github.com/koehnden/dragon-lens/internal/knowledge"
	"github.com/koehnden/dragon-lens/internal/model"
	"github.com/koehnden/dragon-lens/internal/service"
)

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect the cross-run knowledge base",
	}

	cmd.AddCommand(knowledgeShowCmd())
	cmd.AddCommand(knowledgeBrandOfCmd())
	return cmd
}

func knowledgeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the canonical entities accumulated for a vertical",
		RunE:  runKnowledgeShow,
	}

	cmd.Flags().String("vertical", "", "vertical name (required)")
	cmd.Flags().Bool("validated-only", false, "only show validated entities")
	_ = cmd.MarkFlagRequired("vertical")

	return cmd
}

func runKnowledgeShow(cmd *cobra.Command, _ []string) error {
	vertical, _ := cmd.Flags().GetString("vertical")
	validatedOnly, _ := cmd.Flags().GetBool("validated-only")

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

	brandNames, err := printEntities(cmd, store, kv.ID, model.EntityTypeBrand, validatedOnly)
	if err != nil {
		return err
	}
	if _, err := printEntities(cmd, store, kv.ID, model.EntityTypeProduct, validatedOnly); err != nil {
		return err
	}

	mappings, err := store.ListMappings(ctx, kv.ID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		product, err := store.GetCanonicalEntity(ctx, m.ProductID)
		if err != nil {
			continue
		}
		brand := brandNames[m.BrandID]
		fmt.Printf("mapping\t%s -> %s\tsource=%s\tconfidence=%.2f\n",
			product.CanonicalName, brand, m.Source, m.Confidence)
	}
	return nil
}

func printEntities(cmd *cobra.Command, store service.Store, kvID int64,
	entityType model.EntityType, validatedOnly bool) (map[int64]string, error) {
	ctx := cmd.Context()
	entities, err := store.ListCanonicalEntities(ctx, kvID, entityType)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(entities))
	for _, entity := range entities {
		names[entity.ID] = entity.CanonicalName
		if validatedOnly && !entity.IsValidated {
			continue
		}

		aliases, err := store.ListAliases(ctx, entity.ID)
		if err != nil {
			return nil, err
		}
		aliasNames := make([]string, len(aliases))
		for i, a := range aliases {
			aliasNames[i] = a.Alias
		}

		status := "pending"
		if entity.IsValidated {
			status = string(entity.ValidationSource)
		}
		line := fmt.Sprintf("%s\t%s\tmentions=%d\tvalidation=%s",
			entity.Type, entity.CanonicalName, entity.MentionCount, status)
		if len(aliasNames) > 0 {
			line += "\taliases=" + strings.Join(aliasNames, ",")
		}
		fmt.Println(line)
	}
	return names, nil
}

func knowledgeBrandOfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brand-of <product>",
		Short: "Look up the validated brand for a product name",
		Args:  cobra.ExactArgs(1),
		RunE:  runKnowledgeBrandOf,
	}

	cmd.Flags().String("vertical", "", "vertical name (required)")
	_ = cmd.MarkFlagRequired("vertical")

	return cmd
}

func runKnowledgeBrandOf(cmd *cobra.Command, args []string) error {
	vertical, _ := cmd.Flags().GetString("vertical")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	brand, ok, err := knowledge.NewService(store).ValidatedMapping(cmd.Context(), vertical, args[0])
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("no validated mapping", "vertical", vertical, "product", args[0])
		return nil
	}
	fmt.Println(brand)
	return nil
}
