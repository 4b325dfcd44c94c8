// Package textnorm normalizes raw answer text and entity names so that
// extraction, storage, and consolidation all compare the same forms.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// chinesePunct maps fullwidth and CJK punctuation to ASCII equivalents.
// width.Narrow handles fullwidth letters and digits but leaves ideographic
// punctuation alone, so those are mapped explicitly.
var chinesePunct = strings.NewReplacer(
	"，", ",",
	"。", ".",
	"、", ",",
	"；", ";",
	"：", ":",
	"！", "!",
	"？", "?",
	"（", "(",
	"）", ")",
	"【", "[",
	"】", "]",
	"《", "<",
	"》", ">",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"　", " ",
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeForNER prepares answer text for candidate generation: fullwidth
// characters become halfwidth, Chinese punctuation becomes ASCII, and
// whitespace runs collapse to a single space.
func NormalizeForNER(text string) string {
	text = width.Narrow.String(text)
	text = chinesePunct.Replace(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)
	nonWordRun    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// EntityKey reduces an entity name to its comparison key: parentheticals
// dropped, punctuation and whitespace stripped, casefolded. Two names with
// the same key are the same entity for matching purposes.
func EntityKey(name string) string {
	name = parenthetical.ReplaceAllString(name, "")
	name = nonWordRun.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

// Corporate suffixes stripped when comparing brand names. Chinese suffixes
// are ordered longest-first so 有限责任公司 wins over 公司.
var (
	chineseSuffixes = []string{
		"有限责任公司", "有限公司", "控股", "集团", "汽车", "公司",
	}
	englishSuffixes = []string{
		"automotive", "holdings", "company", "limited", "group",
		"auto", "corp", "inc", "ltd", "co",
	}
)

// StripBrandSuffix removes trailing corporate suffixes from a brand name.
// Two passes handle stacked suffixes such as "吉利汽车有限公司". Returns the
// input unchanged when stripping would leave nothing.
func StripBrandSuffix(name string) string {
	stripped := strings.TrimSpace(name)
	for pass := 0; pass < 2; pass++ {
		stripped = stripOnce(stripped)
	}
	if stripped == "" {
		return strings.TrimSpace(name)
	}
	return stripped
}

func stripOnce(name string) string {
	for _, suffix := range chineseSuffixes {
		if rest, ok := strings.CutSuffix(name, suffix); ok && rest != "" {
			return strings.TrimSpace(rest)
		}
	}
	lower := strings.ToLower(name)
	for _, suffix := range englishSuffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		rest := name[:len(name)-len(suffix)]
		trimmed := strings.TrimRight(rest, " .,")
		// Require a separator before an English suffix so "Tesco" does
		// not lose its "co".
		if trimmed == "" || len(trimmed) == len(rest) {
			continue
		}
		return trimmed
	}
	return name
}

// SameBrand reports whether two brand names are equal after suffix
// stripping and key normalization.
func SameBrand(a, b string) bool {
	return EntityKey(StripBrandSuffix(a)) == EntityKey(StripBrandSuffix(b))
}
