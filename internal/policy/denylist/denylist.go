// Package denylist decides which search result hosts are never worth fetching.
package denylist

import (
	"net/url"
	"slices"
	"strings"
)

// Policy matches hosts against exact names, "*.suffix" wildcards, and bare
// keywords (entries without a dot) that match anywhere in the host.
type Policy struct {
	exact    map[string]struct{}
	suffixes []string
	keywords []string
}

// New builds a Policy from configuration patterns. Blank entries are ignored.
func New(patterns []string) *Policy {
	p := &Policy{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			p.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			p.addSuffix(strings.TrimPrefix(value, "."))
		case !strings.Contains(value, "."):
			if !slices.Contains(p.keywords, value) {
				p.keywords = append(p.keywords, value)
			}
		default:
			p.exact[value] = struct{}{}
		}
	}
	return p
}

func (p *Policy) addSuffix(suffix string) {
	if suffix == "" || slices.Contains(p.suffixes, suffix) {
		return
	}
	p.suffixes = append(p.suffixes, suffix)
}

// Blocked reports whether host is denied.
func (p *Policy) Blocked(host string) bool {
	if p == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := p.exact[host]; ok {
		return true
	}
	for _, suffix := range p.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	for _, kw := range p.keywords {
		if strings.Contains(host, kw) {
			return true
		}
	}
	return false
}

// AllowURL reports whether rawURL may be fetched. Unparseable URLs are denied.
func (p *Policy) AllowURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return false
	}
	return !p.Blocked(u.Hostname())
}

// Filter keeps the allowed URLs in their original order.
func (p *Policy) Filter(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if p.AllowURL(u) {
			out = append(out, u)
		}
	}
	return out
}
