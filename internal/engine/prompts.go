package engine

import (
	"fmt"
	"strings"

	"github.com/koehnden/dragon-lens/internal/model"
)

// Evidence snippets are truncated so a handful of long answers cannot blow
// up a prompt.
const (
	maxEvidenceSnippets   = 3
	evidenceSnippetRunes  = 240
	maxPromptExampleCount = 20
)

func verifierSystemPrompt(role model.EntityType, vertical, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You classify names extracted from Chinese and English consumer research answers about the %q market.", vertical)
	if description != "" {
		fmt.Fprintf(&b, " Market description: %s.", description)
	}
	if role == model.EntityTypeBrand {
		b.WriteString(" For each name decide whether it is a real company or brand name in this market.")
		b.WriteString(` Respond with only a JSON array: [{"name": "...", "is_brand": true|false}, ...].`)
	} else {
		b.WriteString(" For each name decide whether it is a real product or model name in this market.")
		b.WriteString(` Respond with only a JSON array: [{"name": "...", "is_product": true|false}, ...].`)
	}
	b.WriteString(" Include every input name exactly once. No prose.")
	return b.String()
}

func verifierUserPrompt(names []string, aug *model.AugmentationContext) string {
	var b strings.Builder
	writeAugmentation(&b, aug)
	b.WriteString("Names to classify:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

func resolverSystemPrompt(vertical string) string {
	return fmt.Sprintf("You know the %q market. Given a product name and a fixed list of candidate brands, "+
		"pick the brand that makes this product. You must choose from the candidate list; never invent a brand. "+
		`Respond with only a JSON object: {"brand": "..."}.`, vertical)
}

func resolverUserPrompt(product string, candidates []string, evidence []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\nCandidate brands: %s\n", product, strings.Join(candidates, ", "))
	if len(evidence) > 0 {
		b.WriteString("Evidence:\n")
		for _, snippet := range evidence {
			fmt.Fprintf(&b, "- %s\n", snippet)
		}
	}
	return b.String()
}

func gateSystemPrompt(vertical, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You check whether brands belong to the %q market.", vertical)
	if description != "" {
		fmt.Fprintf(&b, " Market description: %s.", description)
	}
	b.WriteString(" A brand is relevant if it sells products in this market, even as a secondary line.")
	b.WriteString(` Respond with only a JSON array: [{"name": "...", "relevant": true|false}, ...]. Include every input name exactly once.`)
	return b.String()
}

func gateUserPrompt(brands []string, evidence map[string][]string) string {
	var b strings.Builder
	b.WriteString("Brands to check:\n")
	for _, name := range brands {
		fmt.Fprintf(&b, "- %s\n", name)
		for _, snippet := range evidence[name] {
			fmt.Fprintf(&b, "  evidence: %s\n", snippet)
		}
	}
	return b.String()
}

// writeAugmentation renders the knowledge base's few-shot context: validated
// entities as positive examples, rejected names as negative ones.
func writeAugmentation(b *strings.Builder, aug *model.AugmentationContext) {
	if aug == nil {
		return
	}
	writeExamples(b, "Known brands in this market", aug.ValidatedBrands)
	writeExamples(b, "Known products in this market", aug.ValidatedProducts)
	writeRejected(b, "Names previously rejected as brands", aug.RejectedBrands)
	writeRejected(b, "Names previously rejected as products", aug.RejectedProducts)
}

func writeExamples(b *strings.Builder, label string, examples []model.PromptExample) {
	if len(examples) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for i, ex := range examples {
		if i >= maxPromptExampleCount {
			break
		}
		b.WriteString("- " + ex.CanonicalName)
		if len(ex.Aliases) > 0 {
			fmt.Fprintf(b, " (also: %s)", strings.Join(ex.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeRejected(b *strings.Builder, label string, rejected []model.RejectedExample) {
	if len(rejected) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, r := range rejected {
		if r.Reason != "" {
			fmt.Fprintf(b, "- %s (%s)\n", r.Name, r.Reason)
		} else {
			fmt.Fprintf(b, "- %s\n", r.Name)
		}
	}
	b.WriteString("\n")
}

// truncateSnippet trims a snippet to the evidence budget on a rune boundary.
func truncateSnippet(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= evidenceSnippetRunes {
		return string(runes)
	}
	return string(runes[:evidenceSnippetRunes])
}
