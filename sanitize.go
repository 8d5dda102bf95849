package main

import (
	"html"
	"regexp"
	"strings"
)

const (
	minLineLength    = 20
	maxWordFrequency = 10
	freqExemptLength = 6
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	disallowedPattern = regexp.MustCompile(`[^\p{L}\p{N}\s.,;:!?'"()\[\]%$€£#&@/+=-]`)
	spacePattern      = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips markup and boilerplate from raw scraped text. Deterministic,
// never errors; the output is never longer than the input.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	cleaned := tagPattern.ReplaceAllString(text, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = disallowedPattern.ReplaceAllString(cleaned, "")
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")

	cleaned = dropShortLines(cleaned)
	cleaned = dedupeLines(cleaned)
	cleaned = dropNoisyWords(cleaned)

	cleaned = blankLinePattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// dropShortLines removes lines under the minimum length. Short lines are
// overwhelmingly nav labels, buttons, and cookie-banner fragments.
func dropShortLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if len(strings.TrimSpace(line)) >= minLineLength {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func dedupeLines(text string) string {
	lines := strings.Split(text, "\n")
	seen := make(map[string]bool, len(lines))
	kept := lines[:0]
	for _, line := range lines {
		key := strings.TrimSpace(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// dropNoisyWords removes short words that repeat past a frequency ceiling.
// Repeated short tokens are almost always navigation chrome ("Home", "Menu");
// longer words that repeat are usually content-bearing and kept.
func dropNoisyWords(text string) string {
	words := strings.Fields(text)
	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[strings.ToLower(w)]++
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		kept := fields[:0]
		for _, w := range fields {
			if freq[strings.ToLower(w)] > maxWordFrequency && len(w) < freqExemptLength {
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) > 0 {
			out = append(out, strings.Join(kept, " "))
		}
	}
	return strings.Join(out, "\n")
}

// SanitizeResult builds a SanitizedSource from one scrape result.
func SanitizeResult(id int, r ScrapeResult) SanitizedSource {
	cleaned := Sanitize(r.RawContent)
	reduction := 0.0
	if len(r.RawContent) > 0 {
		reduction = 100 * float64(len(r.RawContent)-len(cleaned)) / float64(len(r.RawContent))
	}
	return SanitizedSource{
		ID:                id,
		URL:               r.URL,
		Title:             r.Title,
		CleanedContent:    cleaned,
		ContentLength:     len(cleaned),
		WordCount:         len(strings.Fields(cleaned)),
		NoiseReductionPct: reduction,
	}
}
