package domain

import "strings"

// TaxonomyKey is the config table key under which the taxonomy blob lives.
const TaxonomyKey = "tags"

// OtherTopic is the catch-all topic appended to every subcategory.
const OtherTopic = "other"

// Subcategory groups topics under a category.
type Subcategory struct {
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

// Category is the top level of the three-level taxonomy.
type Category struct {
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories"`
}

// TaxonomyConfig is the hierarchical tag vocabulary accumulated from every
// completed extraction. It is persisted as a single JSON blob.
type TaxonomyConfig struct {
	Categories []Category `json:"categories"`
}

// MergeOutcome reports which levels a Merge call actually added.
type MergeOutcome struct {
	CategoryAdded    bool
	SubcategoryAdded bool
	TopicAdded       bool
}

// Changed reports whether the merge modified the taxonomy.
func (o MergeOutcome) Changed() bool {
	return o.CategoryAdded || o.SubcategoryAdded || o.TopicAdded
}

// Merge folds one category/subcategory/topic triple into the taxonomy.
// Matching at every level is case-insensitive; stored casing follows
// NormalizeCategory and NormalizeTag. Freshly created subcategories end with
// the "other" topic, and new topics added to an existing subcategory are
// inserted before "other" so it stays last. Merge never removes entries.
func (c *TaxonomyConfig) Merge(category, subcategory, topic string) MergeOutcome {
	var out MergeOutcome

	category = NormalizeCategory(category)
	subcategory = NormalizeTag(subcategory)
	topic = NormalizeTag(topic)
	if topic == "" {
		topic = DefaultTopic
	}

	var cat *Category
	for i := range c.Categories {
		if strings.EqualFold(c.Categories[i].Name, category) {
			cat = &c.Categories[i]
			break
		}
	}
	if cat == nil {
		c.Categories = append(c.Categories, Category{Name: category})
		cat = &c.Categories[len(c.Categories)-1]
		out.CategoryAdded = true
	}

	var sub *Subcategory
	for i := range cat.Subcategories {
		if strings.EqualFold(cat.Subcategories[i].Name, subcategory) {
			sub = &cat.Subcategories[i]
			break
		}
	}
	if sub == nil {
		topics := []string{OtherTopic}
		if topic != OtherTopic {
			topics = []string{topic, OtherTopic}
			out.TopicAdded = true
		}
		cat.Subcategories = append(cat.Subcategories, Subcategory{Name: subcategory, Topics: topics})
		out.SubcategoryAdded = true
		return out
	}

	for _, t := range sub.Topics {
		if strings.EqualFold(t, topic) {
			return out
		}
	}
	inserted := false
	for i, t := range sub.Topics {
		if strings.EqualFold(t, OtherTopic) {
			sub.Topics = append(sub.Topics[:i], append([]string{topic}, sub.Topics[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		sub.Topics = append(sub.Topics, topic)
	}
	out.TopicAdded = true
	return out
}

// NormalizeCategory trims and Title-Cases a category name, word by word.
func NormalizeCategory(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		words[i] = titleCaseWord(w)
	}
	return strings.Join(words, " ")
}

// NormalizeTag trims and lowercases a subcategory or topic name.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func titleCaseWord(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return w
	}
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
