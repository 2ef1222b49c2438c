// Package profile defines the practitioner records moved through the refinery
// pipeline along with the field vocabulary shared by extraction, scoring, and
// storage.
package profile

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a persisted Record.
type Status string

// Record statuses written by the pipeline controller.
const (
	StatusPending      Status = "Pending"
	StatusVerified     Status = "Verified"
	StatusEnriched     Status = "Enriched"
	StatusManualReview Status = "Manual_Review"
	StatusFailed       Status = "Failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusEnriched, StatusManualReview, StatusFailed:
		return true
	default:
		return false
	}
}

// Field keys understood by the extractor and scorer.
const (
	FieldName                = "name"
	FieldNPI                 = "npi_id"
	FieldNPIAlt              = "npi"
	FieldLicense             = "license_id"
	FieldSpeciality          = "speciality"
	FieldEmail               = "email"
	FieldPhone               = "phone_no"
	FieldAddress             = "address"
	FieldAge                 = "age"
	FieldHospitalAffiliation = "hospital_affiliation"
	FieldEducation           = "education"
	FieldYearsExperience     = "years_experience"
	FieldLanguages           = "languages"
	FieldSummary             = "summary"
)

// ProfileFields lists every field requested during discovery, in prompt order.
var ProfileFields = []string{
	FieldName,
	FieldNPI,
	FieldLicense,
	FieldSpeciality,
	FieldEmail,
	FieldPhone,
	FieldAddress,
	FieldAge,
	FieldHospitalAffiliation,
	FieldEducation,
	FieldYearsExperience,
	FieldLanguages,
	FieldSummary,
}

var placeholders = map[string]struct{}{
	"":        {},
	"n/a":     {},
	"na":      {},
	"none":    {},
	"null":    {},
	"unknown": {},
	"-":       {},
}

// IsPlaceholder reports whether v carries no usable information (empty, "N/A"
// and friends, or an empty list).
func IsPlaceholder(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		_, ok := placeholders[strings.ToLower(strings.TrimSpace(val))]
		return ok
	case []string:
		for _, item := range val {
			if !IsPlaceholder(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Fields is the open attribute map of a profile. Values are strings or string
// lists; absent keys mean "not found".
type Fields map[string]any

// String returns the field as text, joining lists with ", ".
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// Has reports whether key is present with a non-placeholder value.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && !IsPlaceholder(v)
}

// Clone returns a copy that does not share list storage with f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if list, ok := v.([]string); ok {
			v = slices.Clone(list)
		}
		out[k] = v
	}
	return out
}

// Merge copies every non-placeholder value from src into f, overwriting older
// values. Placeholders never erase what f already holds.
func (f Fields) Merge(src Fields) {
	for k, v := range src {
		if IsPlaceholder(v) {
			continue
		}
		f[k] = v
	}
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// UnmarshalJSON decodes lists as []string so stored fields read back in the
// same shape the extractor produces.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		if list, ok := v.([]any); ok {
			items := make([]string, 0, len(list))
			for _, item := range list {
				items = append(items, fmt.Sprint(item))
			}
			v = items
		}
		out[k] = v
	}
	*f = out
	return nil
}

// Assets groups supporting material discovered on a profile page.
type Assets struct {
	Documents []string `json:"documents"`
	Images    []string `json:"images"`
	// Verified holds assets explicitly confirmed by an operator or upstream feed.
	Verified []string `json:"verified,omitempty"`
}

// Clone deep-copies the asset lists.
func (a Assets) Clone() Assets {
	return Assets{
		Documents: slices.Clone(a.Documents),
		Images:    slices.Clone(a.Images),
		Verified:  slices.Clone(a.Verified),
	}
}

// Empty reports whether no assets were discovered.
func (a Assets) Empty() bool {
	return len(a.Documents) == 0 && len(a.Images) == 0 && len(a.Verified) == 0
}

// Profile is one candidate's extracted data plus provenance.
type Profile struct {
	Fields    Fields `json:"fields"`
	SourceURL string `json:"source_url"`
	Assets    Assets `json:"assets"`
}

// Clone deep-copies p.
func (p Profile) Clone() Profile {
	return Profile{
		Fields:    p.Fields.Clone(),
		SourceURL: p.SourceURL,
		Assets:    p.Assets.Clone(),
	}
}

// Record is the persisted unit keyed by the input name.
type Record struct {
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	InitialScore float64   `json:"initial_score"`
	FinalScore   float64   `json:"final_score"`
	Fields       Fields    `json:"fields"`
	SourceURL    string    `json:"source_url,omitempty"`
	Assets       Assets    `json:"assets"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile projects the record's data back into a Profile for scoring.
func (r Record) Profile() Profile {
	return Profile{
		Fields:    r.Fields.Clone(),
		SourceURL: r.SourceURL,
		Assets:    r.Assets.Clone(),
	}
}

// NewRecord builds a record from a profile snapshot.
func NewRecord(name string, status Status, initial, final float64, p Profile) Record {
	return Record{
		Name:         name,
		Status:       status,
		InitialScore: initial,
		FinalScore:   final,
		Fields:       p.Fields.Clone(),
		SourceURL:    p.SourceURL,
		Assets:       p.Assets.Clone(),
	}
}
