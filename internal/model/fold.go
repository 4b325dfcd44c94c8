package model

import "strings"

// foldKey is the comparison key for bypass lookups. Kept local so model does
// not depend on the textnorm package; callers populate bypass sets with the
// same folding.
func foldKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FoldKey exposes the bypass-set key so builders and tests fold identically.
func FoldKey(name string) string { return foldKey(name) }
