// Package detector decides when a tier-1 page must be re-fetched by the
// stealth browser even though it cleared the content floor.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/profile-refinery/internal/fetcher"
)

// DefaultBodyLengthThreshold bounds the script-density rule.
const DefaultBodyLengthThreshold = 2048

// Heuristic implements a handful of rule-based promotions. Bot-challenge
// interstitials always promote; single-page-app shells only when SPA is set.
type Heuristic struct {
	BodyLengthThreshold int
	SPA                 bool
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int, spa bool) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, SPA: spa}
}

var challengeMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("/cdn-cgi/challenge-platform/"),
	[]byte("<title>just a moment...</title>"),
	[]byte("enable javascript and cookies to continue"),
	[]byte("px-captcha"),
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether page needs a rendered fetch.
func (h *Heuristic) ShouldPromote(page fetcher.Page) bool {
	if page.StatusCode != 0 && page.StatusCode != http.StatusOK {
		return false
	}
	body := page.Body
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	if !h.SPA {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more
// of the lowercased document.
func scriptDensityHigh(lowerBody []byte) bool {
	lower := string(lowerBody)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag: the rest of the document is script.
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
