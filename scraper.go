package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Scraper fetches page content through the external crawl service in bounded
// concurrent batches with per-URL retry.
type Scraper struct {
	baseURL   string
	client    *http.Client
	converter *md.Converter
	limiter   *rate.Limiter
	log       *zap.Logger

	batchSize       int
	retry           RetryPolicy
	healthTimeout   time.Duration
	contentPriority []string
}

func NewScraper(settings *Settings, log *zap.Logger) *Scraper {
	return &Scraper{
		baseURL:   strings.TrimRight(settings.Services.CrawlURL, "/"),
		client:    &http.Client{Timeout: time.Duration(settings.Scraper.CrawlTimeoutS) * time.Second},
		converter: md.NewConverter("", true, nil),
		limiter:   rate.NewLimiter(rate.Limit(settings.Scraper.RequestsPerSecond), settings.Scraper.BatchSize),
		log:       log,
		batchSize: settings.Scraper.BatchSize,
		retry: RetryPolicy{
			MaxAttempts: settings.Scraper.MaxAttempts,
			Backoff:     LinearBackoff(time.Duration(settings.Scraper.BackoffMS) * time.Millisecond),
		},
		healthTimeout:   time.Duration(settings.Scraper.HealthTimeoutS) * time.Second,
		contentPriority: settings.Scraper.ContentPriority,
	}
}

type crawlRequest struct {
	URLs          []string       `json:"urls"`
	BrowserConfig map[string]any `json:"browser_config"`
	CrawlerConfig map[string]any `json:"crawler_config"`
}

type crawlResult struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	Markdown         string `json:"markdown"`
	ExtractedContent string `json:"extracted_content"`
	CleanedHTML      string `json:"cleaned_html"`
	HTML             string `json:"html"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

type crawlResponse struct {
	Success bool          `json:"success"`
	Results []crawlResult `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// HealthCheck probes the crawl service with a short timeout. A failed probe
// fails the whole scrape before any /crawl call is attempted.
func (s *Scraper) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(ErrScrapingUnavailable, err.Error())
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(ErrScrapingUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrScrapingUnavailable, "health returned %d", resp.StatusCode)
	}
	return nil
}

// Scrape fetches the given URLs in fixed-size batches. Within a batch every
// fetch runs concurrently and the batch completes before the next starts.
// URLs that exhaust their retries are dropped; the call only errors when no
// URL yields content.
func (s *Scraper) Scrape(ctx context.Context, urls []string, stream *ProgressStream) ([]ScrapeResult, error) {
	results, err := s.ScrapeBatches(ctx, urls, stream, 0, len(urls))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.Wrapf(ErrScrapingTotalFailure, "%d URLs attempted", len(urls))
	}
	return results, nil
}

// ScrapeBatches runs the batching loop without the zero-yield check, so the
// orchestrator can reuse it for backfill rounds and judge total yield itself.
// done/total drive the progress counters across backfill re-entry.
func (s *Scraper) ScrapeBatches(ctx context.Context, urls []string, stream *ProgressStream, done, total int) ([]ScrapeResult, error) {
	var all []ScrapeResult

	for start := 0; start < len(urls); start += s.batchSize {
		end := start + s.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		slots := make([]*ScrapeResult, len(batch))
		g, gCtx := errgroup.WithContext(ctx)
		for i, u := range batch {
			g.Go(func() error {
				result, err := s.scrapeOne(gCtx, u)
				if err != nil {
					s.log.Warn("url dropped after retries", zap.String("url", u), zap.Error(err))
					if stream != nil {
						stream.Error("could not scrape " + u)
					}
					return nil // per-URL failure never fails the batch
				}
				slots[i] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return all, err
		}

		// Results append in batch order; slot order within the batch is the
		// request order, not completion order.
		for _, r := range slots {
			if r == nil {
				continue
			}
			all = append(all, *r)
			done++
			if stream != nil {
				stream.Progress("scraping sources", done, total, r.URL)
			}
		}
	}

	return all, nil
}

func (s *Scraper) scrapeOne(ctx context.Context, url string) (*ScrapeResult, error) {
	var result *ScrapeResult
	err := s.retry.Do(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := s.crawl(ctx, url)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (s *Scraper) crawl(ctx context.Context, url string) (*ScrapeResult, error) {
	payload, err := json.Marshal(crawlRequest{
		URLs:          []string{url},
		BrowserConfig: map[string]any{"headless": true},
		CrawlerConfig: map[string]any{"cache_mode": "bypass"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/crawl", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "crawling %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed crawlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "parsing crawl response")
	}
	if !parsed.Success || len(parsed.Results) == 0 {
		return nil, errors.Newf("crawl service rejected %s: %s", url, parsed.Error)
	}

	page := parsed.Results[0]
	if page.Error != "" && !page.Success {
		return nil, errors.Newf("crawl failed for %s: %s", url, page.Error)
	}

	content := s.selectContent(page)
	title := page.Title
	if title == "" {
		title = s.extractTitle(page.HTML)
	}
	if title == "" {
		title = url
	}
	if content == "" {
		// Usable page with nothing extractable; logged, not fatal.
		s.log.Info("no usable content", zap.String("url", url))
	}

	return &ScrapeResult{URL: url, Title: title, RawContent: content}, nil
}

// selectContent walks the configured priority order. HTML variants are
// converted to markdown so downstream sanitization sees uniform text.
func (s *Scraper) selectContent(page crawlResult) string {
	for _, kind := range s.contentPriority {
		switch kind {
		case "markdown":
			if page.Markdown != "" {
				return page.Markdown
			}
		case "extracted_content":
			if page.ExtractedContent != "" {
				return page.ExtractedContent
			}
		case "cleaned_html":
			if page.CleanedHTML != "" {
				if converted, err := s.converter.ConvertString(page.CleanedHTML); err == nil {
					return converted
				}
				return page.CleanedHTML
			}
		case "html":
			if page.HTML != "" {
				if converted, err := s.converter.ConvertString(page.HTML); err == nil {
					return converted
				}
				return page.HTML
			}
		}
	}
	return ""
}

func (s *Scraper) extractTitle(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
