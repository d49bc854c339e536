package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/model"
)

const systemPrompt = `You are a business intelligence analyst. You read pages from a company's website and produce a single structured profile of the company. Only state facts supported by the page content. Respond with JSON only, no prose, no markdown fences.`

const reinforcement = `

Your previous answer was not valid JSON. Respond again with ONLY the JSON object described above. Do not include any explanation, markdown fences, or text outside the JSON object.`

// buildPrompt assembles the aggregation prompt: instructions, the JSON
// shape, and one labeled block per extracted page. Each page is capped at
// perPageChars and the whole prompt at maxPromptChars; later pages are
// dropped first.
func buildPrompt(company model.Company, pages []extraction.PageContent, perPageChars, maxPromptChars int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Company: %s\n", company.Name)
	if company.Website != "" {
		fmt.Fprintf(&sb, "Website: %s\n", company.Website)
	}
	sb.WriteString("\nProduce a JSON object with exactly these fields:\n")
	sb.WriteString(schemaDescription())
	sb.WriteString("\nWebsite content follows.\n")

	for i, p := range pages {
		if p.Err != nil || p.Text == "" {
			continue
		}
		text := p.Text
		if perPageChars > 0 && len(text) > perPageChars {
			text = string([]rune(text)[:perPageChars])
		}
		block := fmt.Sprintf("\n=== PAGE %d: %s", i+1, p.URL)
		if p.Title != "" {
			block += " (" + p.Title + ")"
		}
		block += " ===\n" + text + "\n"

		if maxPromptChars > 0 && sb.Len()+len(block) > maxPromptChars {
			break
		}
		sb.WriteString(block)
	}

	return sb.String()
}

// schemaDescription renders the expected output shape, including the legal
// values for every enumerated field.
func schemaDescription() string {
	var sb strings.Builder
	sb.WriteString(`{
  "description": "one-paragraph company description",
  "value_proposition": "what the company promises its customers",
  "industry": "primary industry",
  "business_model": "how the company makes money",
  "target_market": "who the company sells to",
  "company_size": "size description if stated",
  "founding_year": "founding year if stated",
  "location": "headquarters location if stated",
  "employee_count_range": "employee range if stated",
  "company_culture": "culture notes if stated",
  "funding_status": "funding details if stated",
  "tech_stack": ["technologies in use"],
  "pain_points": ["customer pain points the company addresses"],
  "key_services": ["main services"],
  "competitive_advantages": ["stated differentiators"],
  "products_services_offered": ["products and services"],
  "partnerships": ["named partners"],
  "certifications": ["certifications held"],
  "awards": ["awards won"],
  "recent_news": ["recent announcements"],
  "leadership_team": ["named leaders with titles"],
  "contact_info": {"email": "...", "phone": "...", "address": "..."},
`)

	fields := make([]string, 0, len(model.ClassificationEnums))
	for f := range model.ClassificationEnums {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for i, f := range fields {
		vals := append([]string{}, model.ClassificationEnums[f]...)
		vals = append(vals, model.Unknown)
		fmt.Fprintf(&sb, `  %q: {"value": "one of: %s", "confidence": 0.0}`,
			f, strings.Join(vals, ", "))
		if i < len(fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	sb.WriteString(`Use "" or [] for fields the content does not support. Confidence is between 0 and 1.` + "\n")
	return sb.String()
}
