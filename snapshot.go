package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SnapshotWriter serializes the sanitized sources of one run into durable
// artifacts: a JSON snapshot and a combined text rendering that becomes the
// extraction adapter's literal input.
type SnapshotWriter struct {
	dir string
}

func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir}
}

// BuildSnapshot assembles the snapshot aggregate from sanitized sources.
func BuildSnapshot(sessionID, query string, sources []SanitizedSource) Snapshot {
	totalBytes := 0
	totalReduction := 0.0
	for _, src := range sources {
		totalBytes += src.ContentLength
		totalReduction += src.NoiseReductionPct
	}
	avg := 0.0
	if len(sources) > 0 {
		avg = totalReduction / float64(len(sources))
	}
	return Snapshot{
		Query:             query,
		SessionID:         sessionID,
		CreatedAt:         time.Now(),
		SourceCount:       len(sources),
		TotalContentBytes: totalBytes,
		AvgNoiseReduction: avg,
		Sources:           sources,
	}
}

// Write persists the snapshot. The write is atomic from the caller's view:
// JSON is staged to a temp file and renamed, and the combined rendering only
// lands after the JSON succeeds. Any failure means no usable artifact and the
// pipeline aborts extraction.
func (w *SnapshotWriter) Write(snap Snapshot) (jsonPath, textPath string, err error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", "", errors.Wrap(err, "creating snapshot directory")
	}

	jsonPath = filepath.Join(w.dir, fmt.Sprintf("%s-snapshot.json", snap.SessionID))
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "marshaling snapshot")
	}

	tmp := jsonPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", "", errors.Wrap(err, "staging snapshot")
	}
	if err := os.Rename(tmp, jsonPath); err != nil {
		os.Remove(tmp)
		return "", "", errors.Wrap(err, "committing snapshot")
	}

	textPath = filepath.Join(w.dir, fmt.Sprintf("%s-sources.txt", snap.SessionID))
	if err := os.WriteFile(textPath, []byte(RenderSnapshot(snap)), 0644); err != nil {
		return "", "", errors.Wrap(err, "writing combined rendering")
	}

	return jsonPath, textPath, nil
}

// Read loads a previously written snapshot, for replaying a run.
func (w *SnapshotWriter) Read(sessionID string) (Snapshot, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("%s-snapshot.json", sessionID))
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "reading snapshot %s", sessionID)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "parsing snapshot")
	}
	return snap, nil
}

// RenderSnapshot produces the human-readable combined rendering handed to
// extraction.
func RenderSnapshot(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUERY: %s\n", snap.Query)
	fmt.Fprintf(&b, "CAPTURED: %s\n", snap.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "SOURCES: %d (%d bytes cleaned, %.1f%% noise removed)\n",
		snap.SourceCount, snap.TotalContentBytes, snap.AvgNoiseReduction)

	for _, src := range snap.Sources {
		b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
		fmt.Fprintf(&b, "SOURCE %d: %s\n", src.ID, src.Title)
		fmt.Fprintf(&b, "URL: %s\n", src.URL)
		fmt.Fprintf(&b, "WORDS: %d\n\n", src.WordCount)
		b.WriteString(src.CleanedContent)
		b.WriteString("\n")
	}
	return b.String()
}
