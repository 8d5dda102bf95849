package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Run-level failure classes. Each aborts the state machine and surfaces as a
// single terminal error event; match with errors.Is.
var (
	ErrDiscoveryFailed       = errors.New("discovery produced no candidate URLs")
	ErrAllCandidatesFiltered = errors.New("every candidate URL was filtered out")
	ErrScrapingUnavailable   = errors.New("scraping service unavailable")
	ErrScrapingTotalFailure  = errors.New("no content scraped from any URL")
	ErrExtractionEmpty       = errors.New("extraction produced no data")
	ErrArtifactWriteFailed   = errors.New("artifact write failed")
	ErrDuplicateRequest      = errors.New("identical request already in flight")
)

// HTTPError is a failed HTTP exchange with a collaborator service. Per-URL
// scrape failures wrap this and stay non-fatal.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}
