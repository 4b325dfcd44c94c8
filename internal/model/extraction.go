package model

// ExtractionDebug records what each pipeline stage kept and dropped for one
// answer. Persisted alongside the answer so consolidation can re-read the
// final entity lists without re-running extraction.
type ExtractionDebug struct {
	RawBrands            []string
	RawProducts          []string
	RejectedAtFilter     []string
	RejectedAtListFilter []string
	FinalBrands          []string
	FinalProducts        []string
}

// ExtractionResult is the per-answer output of the extraction pipeline.
// Keys are entity names; values are the surface variants observed for them.
type ExtractionResult struct {
	Brands        map[string][]string
	Products      map[string][]string
	Relationships map[string]string
	Debug         *ExtractionDebug
}

// AllEntities combines brands and products into a single variant map.
func (r ExtractionResult) AllEntities() map[string][]string {
	combined := make(map[string][]string, len(r.Brands)+len(r.Products))
	for name, variants := range r.Brands {
		combined[name] = variants
	}
	for name, variants := range r.Products {
		combined[name] = variants
	}
	return combined
}
