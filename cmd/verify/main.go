// verify checks dataset artifacts on disk: that chunk files for a session
// cover every row exactly once, and that snapshot files parse and match
// their declared source counts.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: verify <chunks|snapshots> <artifact-directory>")
	}

	command := os.Args[1]
	dir := os.Args[2]

	switch command {
	case "chunks":
		if err := verifyChunks(dir); err != nil {
			log.Fatal(err)
		}
	case "snapshots":
		if err := verifySnapshots(dir); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

type chunkFile struct {
	SessionID  string           `json:"session_id"`
	ChunkIndex int              `json:"chunk_index"`
	Offset     int              `json:"offset"`
	TotalRows  int              `json:"total_rows"`
	Rows       []map[string]any `json:"rows"`
}

func verifyChunks(dir string) error {
	sessions := make(map[string][]chunkFile)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading chunk directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), "-chunk-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Error reading %s: %v", path, err)
			continue
		}
		var c chunkFile
		if err := json.Unmarshal(data, &c); err != nil {
			log.Printf("Error parsing %s: %v", path, err)
			continue
		}
		sessions[c.SessionID] = append(sessions[c.SessionID], c)
	}

	if len(sessions) == 0 {
		log.Printf("No chunk files found in %s", dir)
		return nil
	}

	failures := 0
	for sessionID, chunks := range sessions {
		if err := checkCoverage(chunks); err != nil {
			log.Printf("Session %s: %v", sessionID, err)
			failures++
			continue
		}
		log.Printf("Session %s: %d chunks, %d rows, coverage ok", sessionID, len(chunks), chunks[0].TotalRows)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d sessions failed verification", failures, len(sessions))
	}
	return nil
}

func checkCoverage(chunks []chunkFile) error {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})

	total := chunks[0].TotalRows
	covered := 0
	for i, c := range chunks {
		if c.TotalRows != total {
			return fmt.Errorf("chunk %d declares %d total rows, chunk 0 declares %d", c.ChunkIndex, c.TotalRows, total)
		}
		if c.ChunkIndex != i {
			return fmt.Errorf("missing or duplicate chunk index %d", i)
		}
		if c.Offset != covered {
			return fmt.Errorf("chunk %d offset %d, expected %d", c.ChunkIndex, c.Offset, covered)
		}
		covered += len(c.Rows)
	}
	if covered != total {
		return fmt.Errorf("chunks cover %d rows, declared total is %d", covered, total)
	}
	return nil
}

type snapshotFile struct {
	SessionID   string `json:"session_id"`
	Query       string `json:"query"`
	SourceCount int    `json:"source_count"`
	Sources     []struct {
		URL string `json:"url"`
	} `json:"sources"`
}

func verifySnapshots(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading snapshot directory %s: %w", dir, err)
	}

	checked, failures := 0, 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), "-snapshot.json") {
			continue
		}
		checked++
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Error reading %s: %v", path, err)
			failures++
			continue
		}
		var snap snapshotFile
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Printf("Error parsing %s: %v", path, err)
			failures++
			continue
		}
		if snap.SourceCount != len(snap.Sources) {
			log.Printf("Snapshot %s declares %d sources but carries %d", snap.SessionID, snap.SourceCount, len(snap.Sources))
			failures++
			continue
		}
		log.Printf("Snapshot %s: %d sources, query %q", snap.SessionID, snap.SourceCount, snap.Query)
	}

	if checked == 0 {
		log.Printf("No snapshot files found in %s", dir)
		return nil
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d snapshots failed verification", failures, checked)
	}
	return nil
}
