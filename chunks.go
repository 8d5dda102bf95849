package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// ChunkRows splits rows into consecutive windows of size. Chunk i covers
// offset i*size onward; re-chunking the same rows always yields identical
// chunks.
func ChunkRows(sessionID string, rows []Row, schema []SchemaColumn, size, requestedRows int) []Chunk {
	if size <= 0 {
		size = defaultChunkSize
	}

	var chunks []Chunk
	for offset := 0; offset < len(rows); offset += size {
		end := offset + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, Chunk{
			SessionID:     sessionID,
			ChunkIndex:    len(chunks),
			Offset:        offset,
			TotalRows:     len(rows),
			RequestedRows: requestedRows,
			Schema:        schema,
			Rows:          rows[offset:end],
		})
	}
	return chunks
}

// ChunkWriter persists chunks as JSON files keyed by session id and chunk
// index so a consumer can resume delivery from disk.
type ChunkWriter struct {
	dir string
}

func NewChunkWriter(dir string) *ChunkWriter {
	return &ChunkWriter{dir: dir}
}

// WriteChunks writes every chunk; a single failed write fails the whole call
// since downstream consumers verify coverage against TotalRows.
func (w *ChunkWriter) WriteChunks(chunks []Chunk) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating chunk directory")
	}

	paths := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		path := w.chunkPath(chunk.SessionID, chunk.ChunkIndex)
		data, err := json.MarshalIndent(chunk, "", "  ")
		if err != nil {
			return nil, errors.Wrapf(err, "marshaling chunk %d", chunk.ChunkIndex)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, errors.Wrapf(err, "writing chunk %d", chunk.ChunkIndex)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ReadChunks loads every chunk for a session in index order.
func (w *ChunkWriter) ReadChunks(sessionID string) ([]Chunk, error) {
	var chunks []Chunk
	for i := 0; ; i++ {
		data, err := os.ReadFile(w.chunkPath(sessionID, i))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading chunk %d", i)
		}
		var chunk Chunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, errors.Wrapf(err, "parsing chunk %d", i)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (w *ChunkWriter) chunkPath(sessionID string, index int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-chunk-%03d.json", sessionID, index))
}

// VerifyCoverage checks that a set of chunks, in any order, covers the full
// dataset exactly once.
func VerifyCoverage(chunks []Chunk) error {
	if len(chunks) == 0 {
		return errors.New("no chunks")
	}
	total := chunks[0].TotalRows
	covered := 0
	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if c.TotalRows != total {
			return errors.Newf("chunk %d disagrees on total rows: %d vs %d", c.ChunkIndex, c.TotalRows, total)
		}
		if seen[c.ChunkIndex] {
			return errors.Newf("duplicate chunk index %d", c.ChunkIndex)
		}
		seen[c.ChunkIndex] = true
		covered += len(c.Rows)
	}
	if covered != total {
		return errors.Newf("chunks cover %d of %d rows", covered, total)
	}
	return nil
}
