package main

import "time"

// Query is the immutable user intent driving one pipeline run.
type Query struct {
	Text       string `json:"text"`
	TargetRows int    `json:"target_rows"`
	TargetURLs int    `json:"target_urls"`
	Refinement string `json:"refinement,omitempty"`
}

// CandidateURL is a discovered URL plus the search query that produced it.
type CandidateURL struct {
	URL         string `json:"url"`
	SearchQuery string `json:"search_query,omitempty"`
}

// ScrapeResult is one successfully fetched page.
type ScrapeResult struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	RawContent string `json:"raw_content"`
}

// SanitizedSource is the cleaned form of a ScrapeResult, derived 1:1.
type SanitizedSource struct {
	ID                int     `json:"id"`
	URL               string  `json:"url"`
	Title             string  `json:"title"`
	CleanedContent    string  `json:"cleaned_content"`
	ContentLength     int     `json:"content_length"`
	WordCount         int     `json:"word_count"`
	NoiseReductionPct float64 `json:"noise_reduction_pct"`
}

// Snapshot aggregates every sanitized source for one run. Extraction reads
// the snapshot, never the live scrape results, so a run can be replayed.
type Snapshot struct {
	Query             string            `json:"query"`
	SessionID         string            `json:"session_id"`
	CreatedAt         time.Time         `json:"created_at"`
	SourceCount       int               `json:"source_count"`
	TotalContentBytes int               `json:"total_content_bytes"`
	AvgNoiseReduction float64           `json:"avg_noise_reduction"`
	Sources           []SanitizedSource `json:"sources"`
}

// ColumnType is the value type of a schema column.
type ColumnType string

const (
	ColumnNumber ColumnType = "number"
	ColumnString ColumnType = "string"
)

// SchemaColumn describes one column of the extracted dataset.
type SchemaColumn struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Description string     `json:"description,omitempty"`
}

// Row maps column names to scalar values. After normalization every row
// carries exactly the schema's column set.
type Row map[string]string

// Chunk is a fixed-size, self-describing page of final rows. A consumer can
// rebuild the whole dataset from chunks alone, in any order.
type Chunk struct {
	SessionID     string         `json:"session_id"`
	ChunkIndex    int            `json:"chunk_index"`
	Offset        int            `json:"offset"`
	TotalRows     int            `json:"total_rows"`
	RequestedRows int            `json:"requested_rows"`
	Schema        []SchemaColumn `json:"schema"`
	Rows          []Row          `json:"rows"`
}

// EventKind tags a ProgressEvent.
type EventKind string

const (
	EventLog      EventKind = "log"
	EventInfo     EventKind = "info"
	EventSuccess  EventKind = "success"
	EventError    EventKind = "error"
	EventProgress EventKind = "progress"
	EventContent  EventKind = "scraped_content"
	EventComplete EventKind = "complete"
)

// ProgressEvent is the only way pipeline state becomes observable before the
// run terminates.
type ProgressEvent struct {
	Kind      EventKind `json:"type"`
	Message   string    `json:"message,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractionResult is what the AI extraction adapter hands back.
type ExtractionResult struct {
	Rows      []Row          `json:"rows"`
	Schema    []SchemaColumn `json:"schema"`
	Reasoning string         `json:"reasoning,omitempty"`
	RawPath   string         `json:"raw_path,omitempty"`
}

// PipelineResult is the payload of the terminal complete event.
type PipelineResult struct {
	SessionID      string         `json:"session_id"`
	Query          string         `json:"query"`
	URLsDiscovered int            `json:"urls_discovered"`
	URLsScraped    int            `json:"urls_scraped"`
	RowCount       int            `json:"row_count"`
	RequestedRows  int            `json:"requested_rows"`
	ChunkCount     int            `json:"chunk_count"`
	Schema         []SchemaColumn `json:"schema"`
	CSVPath        string         `json:"csv_path"`
	SnapshotPath   string         `json:"snapshot_path"`
	Feedback       string         `json:"feedback,omitempty"`
	Shortfall      int            `json:"shortfall,omitempty"`
}
