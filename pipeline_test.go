package main

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type fakeDiscoverer struct {
	result DiscoveryResult
	err    error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, query string, maxURLs int) (DiscoveryResult, error) {
	return f.result, f.err
}

// fakeScraper replays a scripted list of batch outcomes and records the done
// counter it was handed on each call.
type fakeScraper struct {
	healthErr error
	batches   [][]ScrapeResult
	calls     [][]string
	doneArgs  []int
}

func (f *fakeScraper) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeScraper) ScrapeBatches(ctx context.Context, urls []string, stream *ProgressStream, done, total int) ([]ScrapeResult, error) {
	f.calls = append(f.calls, urls)
	f.doneArgs = append(f.doneArgs, done)
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeExtractor struct {
	result ExtractionResult
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, snap Snapshot, query Query) (ExtractionResult, error) {
	return f.result, f.err
}

func candidateList(urls ...string) []CandidateURL {
	out := make([]CandidateURL, len(urls))
	for i, u := range urls {
		out[i] = CandidateURL{URL: u, SearchQuery: "q"}
	}
	return out
}

func scraped(urls ...string) []ScrapeResult {
	out := make([]ScrapeResult, len(urls))
	for i, u := range urls {
		out[i] = ScrapeResult{URL: u, Title: u, RawContent: "A reasonably long paragraph of page content for " + u}
	}
	return out
}

func testSettings(t *testing.T) *Settings {
	t.Helper()
	s := &Settings{}
	applySettingsDefaults(s)
	s.OutputDirectory = t.TempDir()
	return s
}

func drain(stream *ProgressStream) []ProgressEvent {
	var events []ProgressEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	return events
}

func terminalEvent(events []ProgressEvent) (ProgressEvent, bool) {
	if len(events) == 0 {
		return ProgressEvent{}, false
	}
	return events[len(events)-1], true
}

func TestRunCompleteFlow(t *testing.T) {
	urls := []string{"https://a.example/x", "https://b.example/y", "https://c.example/z"}
	discoverer := &fakeDiscoverer{result: DiscoveryResult{
		URLs:          candidateList(urls...),
		SearchQueries: []string{"q"},
	}}
	scraper := &fakeScraper{batches: [][]ScrapeResult{scraped(urls...)}}
	extractor := &fakeExtractor{result: ExtractionResult{
		Schema: []SchemaColumn{{Name: "name", Type: ColumnString}, {Name: "rating", Type: ColumnNumber}},
		Rows: []Row{
			{"name": "Blue Bottle", "rating": "4.5"},
			{"name": "Stumptown", "rating": "4.7"},
			{"name": "Intelligentsia", "rating": "4.6"},
		},
	}}

	settings := testSettings(t)
	p := NewPipeline(settings, discoverer, scraper, extractor, zap.NewNop())
	stream := NewProgressStream()

	q := Query{Text: "top coffee shops", TargetRows: 10, TargetURLs: 3}
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), "run-a", q, stream)
		stream.Finish()
	}()

	events := drain(stream)
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	last, ok := terminalEvent(events)
	if !ok || last.Kind != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", last)
	}
	result, ok := last.Payload.(PipelineResult)
	if !ok {
		t.Fatalf("complete payload type %T", last.Payload)
	}
	if result.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", result.RowCount)
	}
	if result.URLsScraped != 3 {
		t.Errorf("URLsScraped = %d, want 3", result.URLsScraped)
	}
	if result.ChunkCount != 1 {
		t.Errorf("ChunkCount = %d, want 1", result.ChunkCount)
	}

	if _, err := os.Stat(result.CSVPath); err != nil {
		t.Errorf("CSV artifact missing: %v", err)
	}
	if _, err := os.Stat(result.SnapshotPath); err != nil {
		t.Errorf("snapshot artifact missing: %v", err)
	}

	var contents int
	for _, ev := range events {
		if ev.Kind == EventContent {
			contents++
		}
	}
	if contents != 3 {
		t.Errorf("got %d scraped_content events, want 3", contents)
	}
}

func TestRunScraperDown(t *testing.T) {
	discoverer := &fakeDiscoverer{result: DiscoveryResult{
		URLs:          candidateList("https://a.example/x"),
		SearchQueries: []string{"q"},
	}}
	scraper := &fakeScraper{healthErr: errors.Wrap(ErrScrapingUnavailable, "connection refused")}
	extractor := &fakeExtractor{}

	p := NewPipeline(testSettings(t), discoverer, scraper, extractor, zap.NewNop())
	stream := NewProgressStream()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), "run-b", Query{Text: "q", TargetRows: 5, TargetURLs: 1}, stream)
		stream.Finish()
	}()
	events := drain(stream)

	if err := <-errCh; !errors.Is(err, ErrScrapingUnavailable) {
		t.Fatalf("Run() error = %v, want ErrScrapingUnavailable", err)
	}
	if len(scraper.calls) != 0 {
		t.Errorf("ScrapeBatches called %d times after failed health check", len(scraper.calls))
	}
	last, _ := terminalEvent(events)
	if last.Kind != EventError {
		t.Errorf("terminal event = %s, want error", last.Kind)
	}
}

func TestRunBackfill(t *testing.T) {
	// Seven candidates, target five. Primary round yields three, so backfill
	// draws two from the reserve.
	all := []string{
		"https://a.example/1", "https://b.example/2", "https://c.example/3",
		"https://d.example/4", "https://e.example/5",
		"https://f.example/6", "https://g.example/7",
	}
	discoverer := &fakeDiscoverer{result: DiscoveryResult{
		URLs:          candidateList(all...),
		SearchQueries: []string{"q"},
	}}
	scraper := &fakeScraper{batches: [][]ScrapeResult{
		scraped(all[0], all[1], all[2]),
		scraped(all[5], all[6]),
	}}
	extractor := &fakeExtractor{result: ExtractionResult{
		Rows: []Row{{"name": "one"}, {"name": "two"}},
	}}

	p := NewPipeline(testSettings(t), discoverer, scraper, extractor, zap.NewNop())
	stream := NewProgressStream()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), "run-c", Query{Text: "q", TargetRows: 5, TargetURLs: 5}, stream)
		stream.Finish()
	}()
	events := drain(stream)
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(scraper.calls) != 2 {
		t.Fatalf("ScrapeBatches called %d times, want 2", len(scraper.calls))
	}
	if got := len(scraper.calls[0]); got != 5 {
		t.Errorf("primary round got %d URLs, want 5", got)
	}
	if got := len(scraper.calls[1]); got != 2 {
		t.Errorf("backfill round got %d URLs, want 2", got)
	}
	if scraper.calls[1][0] != all[5] {
		t.Errorf("backfill drew %s, want first reserve candidate %s", scraper.calls[1][0], all[5])
	}
	if scraper.doneArgs[1] != 3 {
		t.Errorf("backfill done counter = %d, want 3", scraper.doneArgs[1])
	}

	last, _ := terminalEvent(events)
	result, ok := last.Payload.(PipelineResult)
	if !ok {
		t.Fatalf("terminal event = %+v, want complete", last)
	}
	if result.URLsScraped != 5 {
		t.Errorf("URLsScraped = %d, want 5", result.URLsScraped)
	}
	if result.Shortfall != 0 {
		t.Errorf("Shortfall = %d, want 0", result.Shortfall)
	}
}

func TestRunExtractionEmpty(t *testing.T) {
	discoverer := &fakeDiscoverer{result: DiscoveryResult{
		URLs:          candidateList("https://a.example/x"),
		SearchQueries: []string{"q"},
	}}
	scraper := &fakeScraper{batches: [][]ScrapeResult{scraped("https://a.example/x")}}
	// A declared schema with zero rows is still an empty extraction, never a
	// dataset of column descriptors.
	extractor := &fakeExtractor{result: ExtractionResult{
		Schema:    []SchemaColumn{{Name: "name", Type: ColumnString}, {Name: "rating", Type: ColumnNumber}},
		Reasoning: "no data found",
	}}

	p := NewPipeline(testSettings(t), discoverer, scraper, extractor, zap.NewNop())
	stream := NewProgressStream()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), "run-d", Query{Text: "obscure", TargetRows: 5, TargetURLs: 1}, stream)
		stream.Finish()
	}()
	events := drain(stream)

	if err := <-errCh; !errors.Is(err, ErrExtractionEmpty) {
		t.Fatalf("Run() error = %v, want ErrExtractionEmpty", err)
	}

	// The snapshot survives the failed extraction for postmortem replay.
	if _, err := p.snapshots.Read("run-d"); err != nil {
		t.Errorf("snapshot missing after empty extraction: %v", err)
	}
	last, _ := terminalEvent(events)
	if last.Kind != EventError {
		t.Errorf("terminal event = %s, want error", last.Kind)
	}
}

func TestRunAllCandidatesFiltered(t *testing.T) {
	discoverer := &fakeDiscoverer{result: DiscoveryResult{
		URLs: candidateList(
			"https://www.google.com/search?q=coffee",
			"https://twitter.com/coffee",
		),
		SearchQueries: []string{"q"},
	}}
	scraper := &fakeScraper{}
	extractor := &fakeExtractor{}

	p := NewPipeline(testSettings(t), discoverer, scraper, extractor, zap.NewNop())
	stream := NewProgressStream()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), "run-e", Query{Text: "q", TargetRows: 5, TargetURLs: 5}, stream)
		stream.Finish()
	}()
	drain(stream)

	if err := <-errCh; !errors.Is(err, ErrAllCandidatesFiltered) {
		t.Fatalf("Run() error = %v, want ErrAllCandidatesFiltered", err)
	}
	if len(scraper.calls) != 0 {
		t.Error("scraper called despite empty candidate set")
	}
}

func TestRunCapsRowsAtTarget(t *testing.T) {
	discoverer := &fakeDiscoverer{result: DiscoveryResult{
		URLs:          candidateList("https://a.example/x"),
		SearchQueries: []string{"q"},
	}}
	scraper := &fakeScraper{batches: [][]ScrapeResult{scraped("https://a.example/x")}}

	rows := make([]Row, 20)
	for i := range rows {
		rows[i] = Row{"name": "shop " + strconv.Itoa(i)}
	}
	extractor := &fakeExtractor{result: ExtractionResult{Rows: rows}}

	p := NewPipeline(testSettings(t), discoverer, scraper, extractor, zap.NewNop())
	stream := NewProgressStream()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), "run-f", Query{Text: "q", TargetRows: 7, TargetURLs: 1}, stream)
		stream.Finish()
	}()
	events := drain(stream)
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	last, _ := terminalEvent(events)
	result := last.Payload.(PipelineResult)
	if result.RowCount != 7 {
		t.Errorf("RowCount = %d, want capped at 7", result.RowCount)
	}
}

func TestClampQuery(t *testing.T) {
	p := NewPipeline(testSettings(t), nil, nil, nil, zap.NewNop())
	tests := []struct {
		name string
		in   Query
		rows int
		urls int
	}{
		{"zero values", Query{}, 1, 1},
		{"negative", Query{TargetRows: -5, TargetURLs: -1}, 1, 1},
		{"over max", Query{TargetRows: 100000, TargetURLs: 99}, maxTargetRows, maxTargetURLs},
		{"in range", Query{TargetRows: 25, TargetURLs: 5}, 25, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ClampQuery(tt.in)
			if got.TargetRows != tt.rows || got.TargetURLs != tt.urls {
				t.Errorf("ClampQuery(%+v) = rows %d urls %d, want %d %d",
					tt.in, got.TargetRows, got.TargetURLs, tt.rows, tt.urls)
			}
		})
	}
}
