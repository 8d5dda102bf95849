package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// PageScraper is the batched scraping contract the orchestrator drives.
type PageScraper interface {
	HealthCheck(ctx context.Context) error
	ScrapeBatches(ctx context.Context, urls []string, stream *ProgressStream, done, total int) ([]ScrapeResult, error)
}

// Pipeline sequences discovery, filtering, scraping, sanitizing, extraction,
// normalization and chunking for one run, reporting every step through the
// run's ProgressStream.
type Pipeline struct {
	settings   *Settings
	discoverer URLDiscoverer
	scraper    PageScraper
	extractor  RowExtractor
	snapshots  *SnapshotWriter
	chunks     *ChunkWriter
	log        *zap.Logger
}

func NewPipeline(settings *Settings, discoverer URLDiscoverer, scraper PageScraper, extractor RowExtractor, log *zap.Logger) *Pipeline {
	return &Pipeline{
		settings:   settings,
		discoverer: discoverer,
		scraper:    scraper,
		extractor:  extractor,
		snapshots:  NewSnapshotWriter(filepath.Join(settings.OutputDirectory, "snapshots")),
		chunks:     NewChunkWriter(filepath.Join(settings.OutputDirectory, "chunks")),
		log:        log,
	}
}

// ClampQuery bounds the row and URL targets to configured limits.
func (p *Pipeline) ClampQuery(q Query) Query {
	if q.TargetRows < 1 {
		q.TargetRows = 1
	}
	if q.TargetRows > p.settings.Pipeline.MaxRows {
		q.TargetRows = p.settings.Pipeline.MaxRows
	}
	if q.TargetURLs < 1 {
		q.TargetURLs = 1
	}
	if q.TargetURLs > p.settings.Pipeline.MaxURLs {
		q.TargetURLs = p.settings.Pipeline.MaxURLs
	}
	return q
}

// Run executes the whole pipeline for one session. It always emits a terminal
// complete or error event; no failure, including a panic in a stage, escapes
// unreported. The caller closes the stream afterwards.
func (p *Pipeline) Run(ctx context.Context, sessionID string, q Query, stream *ProgressStream) (err error) {
	log := p.log.With(zap.String("session", sessionID), zap.String("query", q.Text))

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("pipeline panic: %v", r)
			log.Error("pipeline panicked", zap.Any("panic", r))
			stream.Error(fmt.Sprintf("internal error: %v", r))
		}
	}()

	q = p.ClampQuery(q)
	log.Info("run starting", zap.Int("target_rows", q.TargetRows), zap.Int("target_urls", q.TargetURLs))

	fail := func(stage string, failErr error) error {
		log.Error("run failed", zap.String("stage", stage), zap.Error(failErr))
		stream.Error(fmt.Sprintf("%s: %v", stage, failErr))
		return failErr
	}

	// Discovery
	stream.Log(fmt.Sprintf("→ Searching the web for: %s", q.Text))
	discovered, derr := p.discoverer.Discover(ctx, q.Text, q.TargetURLs)
	if derr != nil {
		return fail("discovery", derr)
	}
	stream.Info(fmt.Sprintf("Found %d candidate URLs across %d searches",
		len(discovered.URLs), len(discovered.SearchQueries)))

	// Filtering
	candidates := FilterCandidates(discovered.URLs)
	if len(candidates) == 0 {
		return fail("filtering", errors.Wrapf(ErrAllCandidatesFiltered, "%d candidates rejected", len(discovered.URLs)))
	}
	stream.Log(fmt.Sprintf("→ %d of %d candidates look scrapable", len(candidates), len(discovered.URLs)))

	primary := candidates
	if len(primary) > q.TargetURLs {
		primary = candidates[:q.TargetURLs]
	}
	reserve := candidates[len(primary):]

	// Scraping, with backfill from the reserve pool
	if herr := p.scraper.HealthCheck(ctx); herr != nil {
		return fail("scraping", herr)
	}

	urls := make([]string, len(primary))
	for i, c := range primary {
		urls[i] = c.URL
	}
	results, serr := p.scraper.ScrapeBatches(ctx, urls, stream, 0, q.TargetURLs)
	if serr != nil {
		return fail("scraping", serr)
	}

	backfilled := 0
	for len(results) < q.TargetURLs && len(reserve) > 0 {
		take := q.TargetURLs - len(results)
		if take > len(reserve) {
			take = len(reserve)
		}
		refill := make([]string, take)
		for i := 0; i < take; i++ {
			refill[i] = reserve[i].URL
		}
		reserve = reserve[take:]

		stream.Log(fmt.Sprintf("→ Backfilling with %d more candidates", take))
		more, berr := p.scraper.ScrapeBatches(ctx, refill, stream, len(results), q.TargetURLs)
		if berr != nil {
			return fail("scraping", berr)
		}
		backfilled += len(more)
		results = append(results, more...)
	}

	if len(results) == 0 {
		return fail("scraping", errors.Wrap(ErrScrapingTotalFailure, "backfill exhausted"))
	}
	stream.Success(fmt.Sprintf("✓ Scraped %d pages", len(results)))

	// Sanitizing and snapshotting
	stream.Log("→ Cleaning scraped content")
	sources := make([]SanitizedSource, 0, len(results))
	for i, r := range results {
		src := SanitizeResult(i+1, r)
		sources = append(sources, src)
		stream.Content(src)
	}

	snap := BuildSnapshot(sessionID, q.Text, sources)
	snapPath, _, werr := p.snapshots.Write(snap)
	if werr != nil {
		return fail("snapshot", errors.Wrap(ErrArtifactWriteFailed, werr.Error()))
	}
	stream.Info(fmt.Sprintf("Snapshot written: %d sources, %.1f%% noise removed",
		snap.SourceCount, snap.AvgNoiseReduction))

	// Extraction reads the snapshot, never the live results.
	stream.Log("→ Extracting structured data")
	extraction, xerr := p.extractor.Extract(ctx, snap, q)
	if xerr != nil {
		return fail("extraction", xerr)
	}
	if len(extraction.Rows) == 0 {
		return fail("extraction", errors.Wrapf(ErrExtractionEmpty, "query %q", q.Text))
	}

	// Normalizing: never trust the adapter's shape.
	schema := extraction.Schema
	if !validSchema(schema) {
		schema = InferSchema(extraction.Rows)
	}
	rows := Normalize(extraction.Rows, schema)
	rows = DedupeRows(rows, schema)
	if len(rows) > q.TargetRows {
		rows = rows[:q.TargetRows]
	}
	stream.Success(fmt.Sprintf("✓ Extracted %d rows across %d columns", len(rows), len(schema)))

	// Chunking and final artifacts
	chunks := ChunkRows(sessionID, rows, schema, p.settings.Pipeline.ChunkSize, q.TargetRows)
	if _, cerr := p.chunks.WriteChunks(chunks); cerr != nil {
		return fail("chunking", errors.Wrap(ErrArtifactWriteFailed, cerr.Error()))
	}

	csvText, csvErr := ToCSV(rows, schema)
	if csvErr != nil {
		return fail("csv", errors.Wrap(ErrArtifactWriteFailed, csvErr.Error()))
	}
	if merr := os.MkdirAll(p.settings.OutputDirectory, 0755); merr != nil {
		return fail("csv", errors.Wrap(ErrArtifactWriteFailed, merr.Error()))
	}
	csvPath := filepath.Join(p.settings.OutputDirectory, fmt.Sprintf("%s.csv", sessionID))
	if werr := os.WriteFile(csvPath, []byte(csvText), 0644); werr != nil {
		return fail("csv", errors.Wrap(ErrArtifactWriteFailed, werr.Error()))
	}

	shortfall := 0
	if len(results) < q.TargetURLs {
		shortfall = q.TargetURLs - len(results)
	}
	feedback := fmt.Sprintf("Scraped %d of %d target pages (%d backfilled); extracted %d rows.",
		len(results), q.TargetURLs, backfilled, len(rows))

	result := PipelineResult{
		SessionID:      sessionID,
		Query:          q.Text,
		URLsDiscovered: len(discovered.URLs),
		URLsScraped:    len(results),
		RowCount:       len(rows),
		RequestedRows:  q.TargetRows,
		ChunkCount:     len(chunks),
		Schema:         schema,
		CSVPath:        csvPath,
		SnapshotPath:   snapPath,
		Feedback:       feedback,
		Shortfall:      shortfall,
	}
	stream.Complete(result)
	log.Info("run complete",
		zap.Int("urls_scraped", len(results)),
		zap.Int("rows", len(rows)),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// validSchema rejects adapter schemas with no columns or duplicate names.
func validSchema(schema []SchemaColumn) bool {
	if len(schema) == 0 {
		return false
	}
	seen := make(map[string]bool, len(schema))
	for _, col := range schema {
		if col.Name == "" || seen[col.Name] {
			return false
		}
		seen[col.Name] = true
	}
	return true
}
