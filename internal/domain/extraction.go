package domain

// ParsePath records which branch of the extraction response parser produced a
// result.
type ParsePath string

const (
	// ParsePathStructured means the response matched the full extraction schema.
	ParsePathStructured ParsePath = "structured"
	// ParsePathLegacy means the response was a bare JSON string of raw text.
	ParsePathLegacy ParsePath = "legacy"
	// ParsePathDegraded means the response was unparseable and defaults were
	// substituted, with the raw text preserved.
	ParsePathDegraded ParsePath = "degraded"
)

// Degraded extraction defaults, used when the model response cannot be parsed.
const (
	DegradedCategory    = "Misc"
	DegradedSubcategory = "general"
	DegradedTitle       = "Extraction Result"
	DegradedParaphrased = "Failed to parse structured response"
)

// ExtractionResult is the normalized output of a vision extraction call. The
// IsNew flags signal that the taxonomy merge is required.
type ExtractionResult struct {
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory"`
	Topic            string    `json:"topic"`
	Title            string    `json:"title"`
	RawData          string    `json:"raw_data"`
	ParaphrasedData  string    `json:"paraphrased_data"`
	IsNewCategory    bool      `json:"is_new_category"`
	IsNewSubcategory bool      `json:"is_new_subcategory"`
	IsNewTopic       bool      `json:"is_new_topic"`
	ParsePath        ParsePath `json:"-"`
}

// NeedsTaxonomyMerge reports whether any taxonomy level was flagged as new.
func (r *ExtractionResult) NeedsTaxonomyMerge() bool {
	return r.IsNewCategory || r.IsNewSubcategory || r.IsNewTopic
}

// Normalize applies the taxonomy casing rules and the topic default in place.
func (r *ExtractionResult) Normalize() {
	r.Category = NormalizeCategory(r.Category)
	r.Subcategory = NormalizeTag(r.Subcategory)
	r.Topic = NormalizeTag(r.Topic)
	if r.Topic == "" {
		r.Topic = DefaultTopic
	}
}
