package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleSources() []SanitizedSource {
	return []SanitizedSource{
		{
			ID:                1,
			URL:               "https://example.com/coffee",
			Title:             "Best Coffee Shops",
			CleanedContent:    "Blue Bottle tops the list with a 4.5 rating downtown.",
			ContentLength:     54,
			WordCount:         10,
			NoiseReductionPct: 40,
		},
		{
			ID:                2,
			URL:               "https://example.org/cafes",
			Title:             "City Cafes",
			CleanedContent:    "Stumptown roasts in house and opens at six each morning.",
			ContentLength:     56,
			WordCount:         11,
			NoiseReductionPct: 60,
		},
	}
}

func TestBuildSnapshotAggregates(t *testing.T) {
	snap := BuildSnapshot("s1", "top coffee shops", sampleSources())

	if snap.SourceCount != 2 {
		t.Errorf("SourceCount = %d, want 2", snap.SourceCount)
	}
	if snap.TotalContentBytes != 110 {
		t.Errorf("TotalContentBytes = %d, want 110", snap.TotalContentBytes)
	}
	if snap.AvgNoiseReduction != 50 {
		t.Errorf("AvgNoiseReduction = %f, want 50", snap.AvgNoiseReduction)
	}
	if snap.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestBuildSnapshotEmpty(t *testing.T) {
	snap := BuildSnapshot("s1", "q", nil)
	if snap.AvgNoiseReduction != 0 {
		t.Errorf("AvgNoiseReduction = %f for zero sources, want 0", snap.AvgNoiseReduction)
	}
}

func TestSnapshotWriteRead(t *testing.T) {
	dir := t.TempDir()
	w := NewSnapshotWriter(dir)
	snap := BuildSnapshot("session-1", "top coffee shops", sampleSources())

	jsonPath, textPath, err := w.Write(snap)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Dir(jsonPath) != dir || filepath.Dir(textPath) != dir {
		t.Errorf("artifacts written outside target dir: %s, %s", jsonPath, textPath)
	}

	// No stale temp files after a successful write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	loaded, err := w.Read("session-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if loaded.Query != snap.Query {
		t.Errorf("Query = %q, want %q", loaded.Query, snap.Query)
	}
	if len(loaded.Sources) != len(snap.Sources) {
		t.Fatalf("Sources = %d, want %d", len(loaded.Sources), len(snap.Sources))
	}
	if loaded.Sources[1].CleanedContent != snap.Sources[1].CleanedContent {
		t.Error("source content did not round trip")
	}
}

func TestSnapshotReadMissing(t *testing.T) {
	w := NewSnapshotWriter(t.TempDir())
	if _, err := w.Read("nonexistent"); err == nil {
		t.Error("Read() of missing snapshot succeeded")
	}
}

func TestRenderSnapshot(t *testing.T) {
	snap := BuildSnapshot("s1", "top coffee shops", sampleSources())
	text := RenderSnapshot(snap)

	if !strings.Contains(text, "QUERY: top coffee shops") {
		t.Error("rendering missing query header")
	}
	if !strings.Contains(text, "SOURCE 1: Best Coffee Shops") {
		t.Error("rendering missing first source header")
	}
	if !strings.Contains(text, "URL: https://example.org/cafes") {
		t.Error("rendering missing second source URL")
	}
	if !strings.Contains(text, "Blue Bottle tops the list") {
		t.Error("rendering missing source content")
	}
	if strings.Count(text, strings.Repeat("=", 60)) != 2 {
		t.Error("rendering should separate each source")
	}
}
