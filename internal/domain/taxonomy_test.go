package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyMerge_EmptyConfig(t *testing.T) {
	cfg := &TaxonomyConfig{}

	out := cfg.Merge("technology", "programming", "golang")

	assert.True(t, out.CategoryAdded)
	assert.True(t, out.SubcategoryAdded)
	assert.True(t, out.TopicAdded)
	assert.True(t, out.Changed())

	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, "Technology", cfg.Categories[0].Name)
	require.Len(t, cfg.Categories[0].Subcategories, 1)
	sub := cfg.Categories[0].Subcategories[0]
	assert.Equal(t, "programming", sub.Name)
	assert.Equal(t, []string{"golang", "other"}, sub.Topics)
}

func TestTaxonomyMerge_NewSubcategoryWithOtherTopic(t *testing.T) {
	cfg := &TaxonomyConfig{}

	out := cfg.Merge("Misc", "general", "other")

	assert.True(t, out.SubcategoryAdded)
	assert.False(t, out.TopicAdded)

	sub := cfg.Categories[0].Subcategories[0]
	assert.Equal(t, []string{"other"}, sub.Topics)
}

func TestTaxonomyMerge_TopicInsertedBeforeOther(t *testing.T) {
	cfg := &TaxonomyConfig{
		Categories: []Category{{
			Name: "Technology",
			Subcategories: []Subcategory{{
				Name:   "programming",
				Topics: []string{"golang", "other"},
			}},
		}},
	}

	out := cfg.Merge("Technology", "programming", "rust")

	assert.False(t, out.CategoryAdded)
	assert.False(t, out.SubcategoryAdded)
	assert.True(t, out.TopicAdded)
	assert.Equal(t, []string{"golang", "rust", "other"},
		cfg.Categories[0].Subcategories[0].Topics)
}

func TestTaxonomyMerge_TopicAppendedWithoutOther(t *testing.T) {
	// Pre-existing subcategories without an "other" entry keep their shape.
	cfg := &TaxonomyConfig{
		Categories: []Category{{
			Name: "Technology",
			Subcategories: []Subcategory{{
				Name:   "programming",
				Topics: []string{"golang"},
			}},
		}},
	}

	out := cfg.Merge("Technology", "programming", "rust")

	assert.True(t, out.TopicAdded)
	assert.Equal(t, []string{"golang", "rust"},
		cfg.Categories[0].Subcategories[0].Topics)
}

func TestTaxonomyMerge_CaseInsensitiveMatching(t *testing.T) {
	cfg := &TaxonomyConfig{}
	cfg.Merge("Technology", "Programming", "Golang")

	out := cfg.Merge("TECHNOLOGY", "programming", "golang")

	assert.False(t, out.Changed())
	require.Len(t, cfg.Categories, 1)
	require.Len(t, cfg.Categories[0].Subcategories, 1)
}

func TestTaxonomyMerge_Idempotent(t *testing.T) {
	cfg := &TaxonomyConfig{}
	first := cfg.Merge("Science", "physics", "quantum")
	second := cfg.Merge("Science", "physics", "quantum")

	assert.True(t, first.Changed())
	assert.False(t, second.Changed())
	assert.Equal(t, []string{"quantum", "other"},
		cfg.Categories[0].Subcategories[0].Topics)
}

func TestTaxonomyMerge_EmptyTopicDefaulted(t *testing.T) {
	cfg := &TaxonomyConfig{}
	cfg.Merge("Misc", "general", "")

	assert.Equal(t, []string{"general", "other"},
		cfg.Categories[0].Subcategories[0].Topics)
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"technology", "Technology"},
		{"  machine learning  ", "Machine Learning"},
		{"FOOD AND DRINK", "Food And Drink"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCategory(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "programming", NormalizeTag("  Programming "))
	assert.Equal(t, "golang", NormalizeTag("GoLang"))
}
