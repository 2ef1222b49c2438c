// Package scorer implements the fixed confidence rubric that gates pipeline
// phase transitions. Everything here is pure.
package scorer

import (
	"math"
	"net/url"
	"strings"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// Criterion identifies one rubric line.
type Criterion string

// Rubric criteria.
const (
	CriterionIdentifier          Criterion = "identifier"
	CriterionLicense             Criterion = "license"
	CriterionSourceTrust         Criterion = "source_trust"
	CriterionContact             Criterion = "contact"
	CriterionAssetsVerified      Criterion = "assets_verified"
	CriterionDocumentsUnverified Criterion = "documents_unverified"
)

// Threshold is the score at or above which a record needs no enrichment.
const Threshold = 0.8

const documentsBonus = 0.05

// contact is a reserved slot; Evaluate never awards it.
var weights = map[Criterion]float64{
	CriterionIdentifier:     0.35,
	CriterionLicense:        0.20,
	CriterionSourceTrust:    0.15,
	CriterionContact:        0.15,
	CriterionAssetsVerified: 0.15,
}

var trustedHostMarkers = []string{".gov", "health.usnews", "npidb"}

// Weights returns a copy of the fixed weight table.
func Weights() map[Criterion]float64 {
	out := make(map[Criterion]float64, len(weights))
	for k, v := range weights {
		out[k] = v
	}
	return out
}

// Breakdown is the set of criteria satisfied by one evaluation.
type Breakdown map[Criterion]bool

// Has reports whether c was satisfied.
func (b Breakdown) Has(c Criterion) bool {
	return b[c]
}

// Evaluate scores p against the rubric. The result is clamped to 1.0 and
// rounded to two decimals.
func Evaluate(p profile.Profile) (float64, Breakdown) {
	satisfied := Breakdown{}
	score := 0.0

	if hasIdentifier(p.Fields) {
		score += weights[CriterionIdentifier]
		satisfied[CriterionIdentifier] = true
	}
	if p.Fields.Has(profile.FieldLicense) {
		score += weights[CriterionLicense]
		satisfied[CriterionLicense] = true
	}
	if TrustedSource(p.SourceURL) {
		score += weights[CriterionSourceTrust]
		satisfied[CriterionSourceTrust] = true
	}
	switch {
	case len(p.Assets.Verified) > 0:
		score += weights[CriterionAssetsVerified]
		satisfied[CriterionAssetsVerified] = true
	case len(p.Assets.Documents) > 0:
		score += documentsBonus
		satisfied[CriterionDocumentsUnverified] = true
	}

	return math.Round(math.Min(score, 1.0)*100) / 100, satisfied
}

// MissingFields lists the hunt targets implied by a breakdown, identifier first.
func MissingFields(b Breakdown) []string {
	var missing []string
	if !b.Has(CriterionIdentifier) {
		missing = append(missing, profile.FieldNPI)
	}
	if !b.Has(CriterionLicense) {
		missing = append(missing, profile.FieldLicense)
	}
	return missing
}

// TrustedSource reports whether the URL host belongs to a government domain or
// a designated health directory.
func TrustedSource(raw string) bool {
	if raw == "" {
		return false
	}
	host := strings.ToLower(raw)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = strings.ToLower(u.Hostname())
	}
	for _, marker := range trustedHostMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

func hasIdentifier(f profile.Fields) bool {
	for _, key := range []string{profile.FieldNPI, profile.FieldNPIAlt} {
		if countDigits(f.String(key)) == 10 {
			return true
		}
	}
	return false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
