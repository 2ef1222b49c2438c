// Package assets finds supporting documents and credential images linked
// from a profile page.
package assets

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

var (
	documentSuffixes = []string{".pdf", ".doc", ".docx"}
	imageKeywords    = []string{"cert", "award", "license", "board"}
)

// Discover parses html and returns document links and credential images,
// resolved against baseURL and de-duplicated in page order.
func Discover(html, baseURL string) (profile.Assets, error) {
	out := profile.Assets{Documents: []string{}, Images: []string{}}
	if strings.TrimSpace(html) == "" {
		return out, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	docs := newOrderedSet()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !hasDocumentSuffix(href) {
			return
		}
		docs.add(resolve(base, href))
	})

	images := newOrderedSet()
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		alt := strings.ToLower(s.AttrOr("alt", ""))
		if !containsAny(alt, imageKeywords) {
			return
		}
		src, _ := s.Attr("src")
		images.add(resolve(base, src))
	})

	out.Documents = docs.items
	out.Images = images.items
	return out, nil
}

func hasDocumentSuffix(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	if u, err := url.Parse(lower); err == nil {
		lower = u.Path
	}
	for _, suffix := range documentSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]struct{}{}, items: []string{}}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
