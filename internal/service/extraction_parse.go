package service

import (
	"encoding/json"
	"strings"

	"github.com/sherlock-kb/sherlock/internal/domain"
)

// structuredExtraction is the full response schema the prompt asks for.
type structuredExtraction struct {
	RawData         string             `json:"raw_data"`
	ParaphrasedData *paraphrasedObject `json:"paraphrased_data"`
	Title           string             `json:"title"`
	Category        *taggedValue       `json:"category"`
	Subcategory     *taggedValue       `json:"subcategory"`
	Topic           *taggedValue       `json:"topic"`
}

type paraphrasedObject struct {
	Summary string              `json:"summary"`
	Details []paraphrasedDetail `json:"details"`
}

type paraphrasedDetail struct {
	Concept             string `json:"concept"`
	ExpandedInformation string `json:"expanded_information"`
}

type taggedValue struct {
	Value string `json:"value"`
	IsNew bool   `json:"is_new"`
}

// legacyExtraction is the older response shape with bare string fields.
type legacyExtraction struct {
	RawData         string          `json:"raw_data"`
	ParaphrasedData json.RawMessage `json:"paraphrased_data"`
	Title           string          `json:"title"`
	Category        json.RawMessage `json:"category"`
	Subcategory     json.RawMessage `json:"subcategory"`
	Topic           json.RawMessage `json:"topic"`
}

// ParseExtractionResponse turns raw model output into an ExtractionResult.
// It tries the structured schema first, then the legacy bare-string shape,
// and finally falls back to a degraded result that keeps the whole response
// as raw data. It never fails; every path re-normalizes the taxonomy fields.
func ParseExtractionResponse(responseText string) *domain.ExtractionResult {
	text := stripCodeFences(responseText)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		result := &domain.ExtractionResult{
			RawData:         responseText,
			ParaphrasedData: domain.DegradedParaphrased,
			Title:           domain.DegradedTitle,
			Category:        domain.DegradedCategory,
			Subcategory:     domain.DegradedSubcategory,
			Topic:           domain.DefaultTopic,
			ParsePath:       domain.ParsePathDegraded,
		}
		result.Normalize()
		return result
	}

	if result, ok := parseStructured(text); ok {
		result.Normalize()
		return result
	}

	result := parseLegacy(text)
	result.Normalize()
	return result
}

func parseStructured(text string) (*domain.ExtractionResult, bool) {
	var s structuredExtraction
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, false
	}
	if s.ParaphrasedData == nil || s.Category == nil || s.Subcategory == nil || s.Topic == nil {
		return nil, false
	}
	if s.Category.Value == "" || s.Subcategory.Value == "" {
		return nil, false
	}

	paraphrased, err := json.Marshal(s.ParaphrasedData)
	if err != nil {
		return nil, false
	}

	return &domain.ExtractionResult{
		RawData:          s.RawData,
		ParaphrasedData:  string(paraphrased),
		Title:            s.Title,
		Category:         s.Category.Value,
		Subcategory:      s.Subcategory.Value,
		Topic:            s.Topic.Value,
		IsNewCategory:    s.Category.IsNew,
		IsNewSubcategory: s.Subcategory.IsNew,
		IsNewTopic:       s.Topic.IsNew,
		ParsePath:        domain.ParsePathStructured,
	}, true
}

func parseLegacy(text string) *domain.ExtractionResult {
	var l legacyExtraction
	_ = json.Unmarshal([]byte(text), &l)

	category, isNewCategory := taggedField(l.Category, domain.DegradedCategory)
	subcategory, isNewSubcategory := taggedField(l.Subcategory, domain.DegradedSubcategory)
	topic, isNewTopic := taggedField(l.Topic, domain.DefaultTopic)

	result := &domain.ExtractionResult{
		RawData:          l.RawData,
		ParaphrasedData:  flattenValue(l.ParaphrasedData, ""),
		Title:            l.Title,
		Category:         category,
		Subcategory:      subcategory,
		Topic:            topic,
		IsNewCategory:    isNewCategory,
		IsNewSubcategory: isNewSubcategory,
		IsNewTopic:       isNewTopic,
		ParsePath:        domain.ParsePathLegacy,
	}
	if result.Title == "" {
		result.Title = "Untitled"
	}
	return result
}

// flattenValue renders a JSON value as a string: bare strings are unwrapped,
// objects and arrays are kept as compact JSON.
func flattenValue(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// taggedField accepts either a {"value": ..., "is_new": ...} object or a bare
// string. Bare strings carry is_new=false.
func taggedField(raw json.RawMessage, fallback string) (string, bool) {
	if len(raw) == 0 {
		return fallback, false
	}
	var tv taggedValue
	if err := json.Unmarshal(raw, &tv); err == nil && tv.Value != "" {
		return tv.Value, tv.IsNew
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, false
	}
	return fallback, false
}

// stripCodeFences removes a surrounding markdown code block, with or without
// a language marker.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}
