// Package prompts holds the vision extraction prompt templates and the
// builder that renders the live taxonomy into them.
package prompts

import (
	"fmt"
	"strings"

	"github.com/sherlock-kb/sherlock/internal/domain"
)

// ExtractionSchemaExample is the exact JSON shape the model must return.
const ExtractionSchemaExample = `{
  "raw_data": "Extract ALL text and content visible in the image. Be thorough and accurate.",
  "paraphrased_data": {
    "summary": "Summary of what is present in the image (e.g., brief description of the flow, architecture, or key concept depicted like roadmap, strategy, pricing comparison, etc.)",
    "details": [
      {
        "concept": "High-level concept",
        "expanded_information": "Detailed information about the concept"
      }
    ]
  },
  "title": "Create a short, descriptive title (5-10 words maximum)",
  "category": {
    "value": "Category name (Title Case)",
    "is_new": false
  },
  "subcategory": {
    "value": "subcategory name (lowercase)",
    "is_new": false
  },
  "topic": {
    "value": "topic name (lowercase)",
    "is_new": false
  }
}`

const extractionRules = `## 3-LEVEL CLASSIFICATION RULES (FOLLOW IN STRICT ORDER):

1. **STRONGLY PREFER EXISTING HIERARCHY**: First, thoroughly evaluate if the content fits ANY existing category > subcategory > topic. Consider semantic similarity and conceptual overlap.

2. **HIERARCHY STRUCTURE**:
   - **Category**: Broad domain (Title Case): "Technology", "Healthcare", "Finance", "Marketing", "Legal", "Science", "Education"
   - **Subcategory**: Area within domain (lowercase): "frontend", "backend", "clinical", "patient care"
   - **Topic**: Specific subject (lowercase): "react components", "api design", "medical records", "workflows"

3. **SEMANTIC MATCHING**: Match by meaning, not just exact words:
   - Image of React code -> "Technology > frontend > react components"
   - Medical workflow diagram -> "Healthcare > clinical > workflows"
   - Database schema -> "Technology > backend > database design"

4. **AVOID "other" AT ALL COSTS**: The "other" topic is an ABSOLUTE LAST RESORT. Only use it if:
   - You've thoroughly considered ALL existing topics
   - The content truly doesn't fit anywhere AND
   - You cannot think of ANY meaningful new topic name
   - PREFER creating a NEW specific topic over using "other"

5. **CREATE NEW ENTRIES WHEN APPROPRIATE**: If content genuinely doesn't fit existing hierarchy:
   - Set "is_new": true for the level(s) you're creating
   - Make names descriptive but concise (2-4 words)
   - Topics should be the most specific - describe what the image is actually about

## CRITICAL JSON STRUCTURE REQUIREMENTS:
- Return ONLY the JSON object, no markdown formatting or explanation
- The "paraphrased_data" field MUST be an object with "summary" (string) and "details" (array)
- Each item in "details" array MUST have "concept" (string) and "expanded_information" (string)
- The "category", "subcategory", and "topic" fields MUST be objects with "value" (string) and "is_new" (boolean)
- Ensure all text is properly escaped for JSON
- Be thorough in extracting raw_data - capture all visible text
- Category value must be Title Case, subcategory and topic values must be lowercase`

// BuildExtractionPrompt renders the extraction prompt with the current
// taxonomy so the model can reuse existing entries.
func BuildExtractionPrompt(taxonomy *domain.TaxonomyConfig) string {
	categoryText := "No existing categories defined yet. Create appropriate ones."
	if taxonomy != nil && len(taxonomy.Categories) > 0 {
		var lines []string
		for _, cat := range taxonomy.Categories {
			if len(cat.Subcategories) == 0 {
				lines = append(lines, fmt.Sprintf("  - %s: (no subcategories yet)", cat.Name))
				continue
			}
			for _, sub := range cat.Subcategories {
				topics := "other"
				if len(sub.Topics) > 0 {
					topics = strings.Join(sub.Topics, ", ")
				}
				lines = append(lines, fmt.Sprintf("  - %s > %s: [%s]", cat.Name, sub.Name, topics))
			}
		}
		categoryText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Analyze this image and extract the following information. Return ONLY a valid JSON object with no additional text.

You MUST follow this EXACT JSON structure:

%s

## EXISTING CATEGORY HIERARCHY (Category > Subcategory: [topics]):
%s

%s`, ExtractionSchemaExample, categoryText, extractionRules)
}
