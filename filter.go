package main

import (
	"net/url"
	"strings"
)

// Hosts whose pages carry no extractable signal: search result pages point at
// other pages, social platforms block scrapers or paginate via JS.
var searchHosts = map[string]bool{
	"google.com":       true,
	"bing.com":         true,
	"duckduckgo.com":   true,
	"search.yahoo.com": true,
	"baidu.com":        true,
	"yandex.com":       true,
}

var searchPaths = []string{"/search", "/s", "/results", "/web"}

var socialHosts = map[string]bool{
	"facebook.com":  true,
	"twitter.com":   true,
	"x.com":         true,
	"instagram.com": true,
	"tiktok.com":    true,
	"linkedin.com":  true,
	"pinterest.com": true,
	"reddit.com":    true,
	"threads.net":   true,
}

var wikiMainPaths = []string{
	"/wiki/Main_Page",
	"/wiki/Portal:",
	"/wiki/Special:",
	"/wiki/Wikipedia:",
}

// IsScrapable reports whether a URL is worth sending to the scraper. It is
// total: any malformed input yields false, never a panic.
func IsScrapable(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	if host == "" {
		return false
	}

	if searchHosts[host] || isSubdomainOf(host, searchHosts) {
		for _, p := range searchPaths {
			if u.Path == p || strings.HasPrefix(u.Path, p+"/") {
				return false
			}
		}
	}

	if socialHosts[host] || isSubdomainOf(host, socialHosts) {
		return false
	}

	for _, p := range wikiMainPaths {
		if strings.HasPrefix(u.Path, p) {
			return false
		}
	}

	return true
}

func isSubdomainOf(host string, set map[string]bool) bool {
	for domain := range set {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// FilterCandidates keeps scrapable candidates, preserving order and dropping
// duplicates by URL.
func FilterCandidates(candidates []CandidateURL) []CandidateURL {
	seen := make(map[string]bool, len(candidates))
	kept := make([]CandidateURL, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.URL] || !IsScrapable(c.URL) {
			continue
		}
		seen[c.URL] = true
		kept = append(kept, c)
	}
	return kept
}
