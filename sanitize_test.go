package main

import (
	"strings"
	"testing"
)

func TestSanitizeEmpty(t *testing.T) {
	if got := Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want \"\"", got)
	}
}

func TestSanitizeNeverGrows(t *testing.T) {
	inputs := []string{
		"",
		"plain text that is long enough to survive the line filter easily",
		"<div><p>some markup heavy content with enough length to be kept</p></div>",
		"&amp;&lt;&gt; entities &quot;quoted&quot; and more text to pass the length gate",
		strings.Repeat("Home ", 50),
		"line one is long enough to keep around\nline one is long enough to keep around",
	}
	for _, in := range inputs {
		if got := Sanitize(in); len(got) > len(in) {
			t.Errorf("Sanitize grew output: %d > %d for %q", len(got), len(in), in)
		}
	}
}

func TestSanitizeStripsTags(t *testing.T) {
	in := "<p>The espresso bar on Fifth Street opens at seven every morning.</p>"
	got := Sanitize(in)
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Errorf("Sanitize left markup in output: %q", got)
	}
	if !strings.Contains(got, "espresso bar on Fifth Street") {
		t.Errorf("Sanitize dropped content: %q", got)
	}
}

func TestSanitizeDecodesEntities(t *testing.T) {
	in := "Beans &amp; brews are rated highly by the neighborhood regulars here."
	got := Sanitize(in)
	if !strings.Contains(got, "Beans & brews") {
		t.Errorf("Sanitize did not decode entities: %q", got)
	}
}

func TestSanitizeDropsShortLines(t *testing.T) {
	in := "Menu\nHome\nThe full tasting flight includes five single-origin pours.\nLogin"
	got := Sanitize(in)
	if strings.Contains(got, "Menu") || strings.Contains(got, "Login") {
		t.Errorf("Sanitize kept nav noise: %q", got)
	}
	if !strings.Contains(got, "tasting flight") {
		t.Errorf("Sanitize dropped real content: %q", got)
	}
}

func TestSanitizeDedupesLines(t *testing.T) {
	line := "Subscribe to our newsletter for weekly updates and offers."
	in := line + "\n" + line + "\n" + line
	got := Sanitize(in)
	if strings.Count(got, "Subscribe to our newsletter") != 1 {
		t.Errorf("Sanitize did not dedupe identical lines: %q", got)
	}
}

func TestSanitizeResultInvariant(t *testing.T) {
	r := ScrapeResult{
		URL:        "https://example.com",
		Title:      "Example",
		RawContent: "<html><body><p>A reasonably long paragraph about coffee roasting techniques.</p></body></html>",
	}
	src := SanitizeResult(3, r)

	if src.ID != 3 {
		t.Errorf("ID = %d, want 3", src.ID)
	}
	if len(src.CleanedContent) > len(r.RawContent) {
		t.Error("cleaned content longer than raw content")
	}
	if src.ContentLength != len(src.CleanedContent) {
		t.Errorf("ContentLength = %d, want %d", src.ContentLength, len(src.CleanedContent))
	}
	if src.NoiseReductionPct < 0 || src.NoiseReductionPct > 100 {
		t.Errorf("NoiseReductionPct = %f out of range", src.NoiseReductionPct)
	}
}
