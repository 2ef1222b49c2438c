package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

const systemPrompt = "You are a JSON extractor. Output ONLY JSON."

const noiseSelectors = "script, style, nav, footer, svg, noscript"

// fieldHints describes each profile field in the discovery prompt.
var fieldHints = map[string]string{
	profile.FieldName:                "string, full name",
	profile.FieldNPI:                 "string, 10-digit US ID, else 'N/A'",
	profile.FieldLicense:             "string",
	profile.FieldSpeciality:          "string",
	profile.FieldEmail:               "string, or 'N/A'",
	profile.FieldPhone:               "string, clinic phone or 'N/A'",
	profile.FieldAddress:             "string, full clinic address",
	profile.FieldAge:                 "string, estimate if mentioned, else 'N/A'",
	profile.FieldHospitalAffiliation: "string, main hospital",
	profile.FieldEducation:           "string, degree/university",
	profile.FieldYearsExperience:     "string",
	profile.FieldLanguages:           "list of strings",
	profile.FieldSummary:             "string, max 50 words",
}

// CleanText strips non-content elements from html and returns its visible
// text with whitespace collapsed, cut to at most maxChars characters.
func CleanText(html string, maxChars int) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noiseSelectors).Remove()

	var words []string
	collectWords(doc.Selection, &words)
	return truncate(strings.Join(words, " "), maxChars), nil
}

func collectWords(s *goquery.Selection, words *[]string) {
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			*words = append(*words, strings.Fields(child.Text())...)
			return
		}
		collectWords(child, words)
	})
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildPrompt returns the system and user prompts for req over the cleaned text.
func BuildPrompt(req Request, text string) (string, string) {
	if req.Mode == ModeMissing {
		return "", missingPrompt(req.Name, req.Fields, text)
	}
	return systemPrompt, profilePrompt(req.Name, text)
}

func profilePrompt(name, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract doctor profile for: '%s'.\n", name)
	b.WriteString("Return STRICT JSON with these fields:\n")
	for _, field := range profile.ProfileFields {
		fmt.Fprintf(&b, "- %s (%s)\n", field, fieldHints[field])
	}
	b.WriteString("\nSource Text:\n")
	b.WriteString(text)
	return b.String()
}

func missingPrompt(name string, missing []string, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context: Doctor '%s' is missing these fields: %s.\n", name, strings.Join(missing, ", "))
	b.WriteString("Analyze the text below. Extract ONLY the missing fields and ignore every other attribute.\n")
	fmt.Fprintf(&b, "Return JSON with keys: %s.\n", strings.Join(missing, ", "))
	b.WriteString("If not found, use 'N/A'.\n\nText:\n")
	b.WriteString(text)
	return b.String()
}
