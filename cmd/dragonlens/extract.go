package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [answer file]",
		Short: "Extract entities from a single answer",
		Long: `Run the extraction pipeline over one answer text and print the result
as JSON. Reads from stdin when no file is given. Nothing is persisted;
use this to inspect what a run would extract.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runExtract,
	}

	cmd.Flags().String("vertical", "", "vertical name, e.g. \"SUV Cars\" (required)")
	cmd.Flags().String("description", "", "vertical description used in prompts")
	cmd.Flags().Bool("debug", false, "include per-stage rejection details")
	_ = cmd.MarkFlagRequired("vertical")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	vertical, _ := cmd.Flags().GetString("vertical")
	description, _ := cmd.Flags().GetString("description")
	debug, _ := cmd.Flags().GetBool("debug")

	var text []byte
	var err error
	if len(args) == 1 {
		text, err = os.ReadFile(args[0])
	} else {
		text, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read answer text: %w", err)
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

	result, err := eng.ExtractEntities(cmd.Context(), string(text), vertical, description)
	if err != nil {
		return err
	}

	out := struct {
		Brands        map[string][]string `json:"brands"`
		Products      map[string][]string `json:"products"`
		Relationships map[string]string   `json:"relationships,omitempty"`
		Rejected      []string            `json:"rejected,omitempty"`
	}{
		Brands:        result.Brands,
		Products:      result.Products,
		Relationships: result.Relationships,
	}
	if debug && result.Debug != nil {
		out.Rejected = append(result.Debug.RejectedAtFilter, result.Debug.RejectedAtListFilter...)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
