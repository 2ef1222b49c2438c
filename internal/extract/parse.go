package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// ParseFields decodes model output into fields. Markdown code fences are
// stripped, keys are lower-cased, numbers become strings, lists become string
// lists, and placeholder values are dropped.
func ParseFields(out string) (profile.Fields, error) {
	body := stripFences(out)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrExtractionMalformed, err)
	}

	fields := make(profile.Fields, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		v, ok := normalize(value)
		if !ok || profile.IsPlaceholder(v) {
			continue
		}
		fields[key] = v
	}
	return fields, nil
}

func stripFences(s string) string {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		before, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(before)
	}
	if _, after, ok := strings.Cut(s, "```"); ok {
		before, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(before)
	}
	return strings.TrimSpace(s)
}

func normalize(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := normalize(item)
			if !ok {
				continue
			}
			if str, isString := s.(string); isString && !profile.IsPlaceholder(str) {
				items = append(items, str)
			}
		}
		if len(items) == 0 {
			return nil, false
		}
		return items, true
	default:
		return nil, false
	}
}
