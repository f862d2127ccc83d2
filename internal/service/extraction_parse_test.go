package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlock-kb/sherlock/internal/domain"
)

const structuredResponse = `{
	"raw_data": "Go 1.22 adds range over functions.",
	"paraphrased_data": {
		"summary": "Go release notes",
		"details": [
			{"concept": "range over func", "expanded_information": "Iterators become first class."}
		]
	},
	"title": "Go 1.22 Release Notes",
	"category": {"value": "technology", "is_new": false},
	"subcategory": {"value": "Programming", "is_new": true},
	"topic": {"value": "GoLang", "is_new": true}
}`

func TestParseExtractionResponse_Structured(t *testing.T) {
	result := ParseExtractionResponse(structuredResponse)

	assert.Equal(t, domain.ParsePathStructured, result.ParsePath)
	assert.Equal(t, "Go 1.22 adds range over functions.", result.RawData)
	assert.Equal(t, "Go 1.22 Release Notes", result.Title)

	// Taxonomy fields come out normalized
	assert.Equal(t, "Technology", result.Category)
	assert.Equal(t, "programming", result.Subcategory)
	assert.Equal(t, "golang", result.Topic)

	assert.False(t, result.IsNewCategory)
	assert.True(t, result.IsNewSubcategory)
	assert.True(t, result.IsNewTopic)
	assert.True(t, result.NeedsTaxonomyMerge())

	// Paraphrased object is re-marshaled as JSON
	var paraphrased map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.ParaphrasedData), &paraphrased))
	assert.Equal(t, "Go release notes", paraphrased["summary"])
}

func TestParseExtractionResponse_CodeFences(t *testing.T) {
	fenced := "```json\n" + structuredResponse + "\n```"

	result := ParseExtractionResponse(fenced)

	assert.Equal(t, domain.ParsePathStructured, result.ParsePath)
	assert.Equal(t, "Technology", result.Category)
}

func TestParseExtractionResponse_Legacy(t *testing.T) {
	legacy := `{
		"raw_data": "handwritten shopping list",
		"paraphrased_data": "A shopping list with milk and eggs",
		"title": "Shopping List",
		"category": "Daily Life",
		"subcategory": "Notes",
		"topic": "shopping"
	}`

	result := ParseExtractionResponse(legacy)

	assert.Equal(t, domain.ParsePathLegacy, result.ParsePath)
	assert.Equal(t, "handwritten shopping list", result.RawData)
	assert.Equal(t, "A shopping list with milk and eggs", result.ParaphrasedData)
	assert.Equal(t, "Shopping List", result.Title)
	assert.Equal(t, "Daily Life", result.Category)
	assert.Equal(t, "notes", result.Subcategory)
	assert.Equal(t, "shopping", result.Topic)

	// Bare string fields never signal new taxonomy entries
	assert.False(t, result.NeedsTaxonomyMerge())
}

func TestParseExtractionResponse_LegacyDefaults(t *testing.T) {
	result := ParseExtractionResponse(`{"raw_data": "just text"}`)

	assert.Equal(t, domain.ParsePathLegacy, result.ParsePath)
	assert.Equal(t, "Untitled", result.Title)
	assert.Equal(t, domain.DegradedCategory, result.Category)
	assert.Equal(t, domain.DegradedSubcategory, result.Subcategory)
	assert.Equal(t, domain.DefaultTopic, result.Topic)
}

func TestParseExtractionResponse_Degraded(t *testing.T) {
	raw := "The model ignored the schema and answered in prose."

	result := ParseExtractionResponse(raw)

	assert.Equal(t, domain.ParsePathDegraded, result.ParsePath)
	assert.Equal(t, raw, result.RawData)
	assert.Equal(t, domain.DegradedParaphrased, result.ParaphrasedData)
	assert.Equal(t, domain.DegradedTitle, result.Title)
	assert.Equal(t, domain.DegradedCategory, result.Category)
	assert.Equal(t, domain.DegradedSubcategory, result.Subcategory)
	assert.Equal(t, domain.DefaultTopic, result.Topic)
	assert.False(t, result.NeedsTaxonomyMerge())
}

func TestParseExtractionResponse_EmptyTopicDefaulted(t *testing.T) {
	response := `{
		"raw_data": "text",
		"paraphrased_data": {"summary": "s", "details": []},
		"title": "t",
		"category": {"value": "Misc", "is_new": false},
		"subcategory": {"value": "general", "is_new": false},
		"topic": {"value": "", "is_new": false}
	}`

	result := ParseExtractionResponse(response)

	assert.Equal(t, domain.ParsePathStructured, result.ParsePath)
	assert.Equal(t, domain.DefaultTopic, result.Topic)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"missing closer", "```json\n{\"a\":1}", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFences(tt.in))
		})
	}
}
