// Package crawler implements the website crawl stage: a breadth-first,
// robots-respecting walk of a POI's website that persists every visited page
// and aggregates structured data into a website snapshot.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
)

// Options groups dependencies for the Crawler.
type Options struct {
	Pages      core.CrawlPageRepository // Required: page persistence
	Config     config.CrawlerConfig     // Crawl limits and politeness settings
	HTTPClient *http.Client             // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger             // Optional: structured logger
	Now        func() time.Time         // Optional: clock override for tests
}

// Crawler walks one website per run. Runs are independent; the crawler keeps
// no state between them beyond what the page repository persists.
type Crawler struct {
	pages  core.CrawlPageRepository
	cfg    config.CrawlerConfig
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Crawler.
func New(opts Options) (*Crawler, error) {
	if opts.Pages == nil {
		return nil, errors.New("CrawlPageRepository is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "crawler")
	}

	return &Crawler{
		pages:  opts.Pages,
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    now,
	}, nil
}

type queuedURL struct {
	url   string
	depth int
}

// Run executes one BFS crawl for a POI. maxDepth overrides the configured
// depth when positive. Individual page failures are recorded and do not abort
// the run; an unusable start URL, a persistence failure, or a run where every
// fetch fails does.
func (c *Crawler) Run(
	ctx context.Context,
	poiID, startURL string,
	maxDepth int,
) (*model.CrawlSummary, error) {
	if poiID == "" {
		return nil, errors.New("poi id is required")
	}

	start, err := NormalizeURL(startURL)
	if err != nil {
		return nil, obserrors.PermanentInput(fmt.Errorf("start url %q: %w", startURL, err))
	}
	startParsed, err := url.Parse(start)
	if err != nil {
		return nil, obserrors.PermanentInput(fmt.Errorf("start url %q: %w", startURL, err))
	}

	depth := c.cfg.MaxDepth
	if maxDepth > 0 {
		depth = maxDepth
	}

	runID := uuid.NewString()
	robots := newRobotsCache(c.client, c.cfg.UserAgent)
	limiter := rate.NewLimiter(rate.Every(c.cfg.MinDelay), 1)

	summary := &model.CrawlSummary{
		RunID:    runID,
		StartURL: start,
	}
	var structBlocks []json.RawMessage

	visited := map[string]struct{}{start: {}}
	queue := []queuedURL{{url: start, depth: 0}}

	for len(queue) > 0 && summary.PagesFetched < c.cfg.MaxPages {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		current := queue[0]
		queue = queue[1:]

		pageURL, err := url.Parse(current.url)
		if err != nil {
			continue
		}

		group := robots.group(ctx, pageURL)
		if !allowed(group, pageURL.Path) {
			if err := c.recordPage(ctx, &model.CrawlPage{
				POIID:   poiID,
				RunID:   runID,
				URL:     current.url,
				Depth:   current.depth,
				Outcome: model.PageSkippedRobots,
			}); err != nil {
				return nil, err
			}
			summary.PagesSkipped++
			continue
		}

		// The robots crawl-delay wins over the configured minimum by slowing
		// the limiter for the rest of the run.
		if group != nil && group.CrawlDelay > c.cfg.MinDelay {
			limiter.SetLimit(rate.Every(group.CrawlDelay))
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, links := c.fetchPage(ctx, poiID, runID, current)
		if err := c.recordPage(ctx, page); err != nil {
			return nil, err
		}

		if page.Outcome == model.PageError {
			summary.PageErrors++
			continue
		}

		summary.PagesFetched++
		if len(page.StructData) > 0 {
			var blocks []json.RawMessage
			if err := json.Unmarshal(page.StructData, &blocks); err == nil {
				structBlocks = append(structBlocks, blocks...)
			}
		}

		if current.depth >= depth {
			continue
		}
		for _, link := range links {
			if _, ok := visited[link]; ok {
				continue
			}
			linkURL, err := url.Parse(link)
			if err != nil || !sameRegistrableDomain(linkURL.Host, startParsed.Host) {
				continue
			}
			visited[link] = struct{}{}
			queue = append(queue, queuedURL{url: link, depth: current.depth + 1})
		}
	}

	// Every fetch failing means the site was unreachable, not partially
	// crawled; fail the run so the job spends its retry budget.
	if summary.PagesFetched == 0 && summary.PageErrors > 0 {
		return nil, obserrors.Transient(
			fmt.Errorf("crawl %s: all %d page fetches failed", start, summary.PageErrors),
		)
	}

	summary.StructData = websiteSnapshot(structBlocks)
	summary.FinishedAt = c.now()

	if c.logger != nil {
		c.logger.InfoContext(ctx, "crawl run finished",
			"poi_id", poiID,
			"run_id", runID,
			"fetched", summary.PagesFetched,
			"skipped", summary.PagesSkipped,
			"errors", summary.PageErrors,
		)
	}
	return summary, nil
}

// fetchPage retrieves one URL and builds its page record plus the outbound
// links found on it. Fetch failures become PageError records, never errors.
func (c *Crawler) fetchPage(
	ctx context.Context,
	poiID, runID string,
	item queuedURL,
) (*model.CrawlPage, []string) {
	page := &model.CrawlPage{
		POIID: poiID,
		RunID: runID,
		URL:   item.url,
		Depth: item.depth,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.url, nil)
	if err != nil {
		return pageWithError(page, err), nil
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return pageWithError(page, err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	page.HTTPStatus = resp.StatusCode
	page.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pageWithError(page, fmt.Errorf("unexpected status %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return pageWithError(page, fmt.Errorf("read body: %w", err)), nil
	}

	page.Outcome = model.PageFetched
	page.Body = body

	if !strings.Contains(strings.ToLower(page.ContentType), "text/html") {
		return page, nil
	}

	if blocks := extractJSONLD(body); len(blocks) > 0 {
		page.StructData = mergeStructData(blocks)
	}
	return page, extractLinks(body, item.url)
}

func pageWithError(page *model.CrawlPage, err error) *model.CrawlPage {
	msg := err.Error()
	page.Outcome = model.PageError
	page.FetchError = &msg
	return page
}

func (c *Crawler) recordPage(ctx context.Context, page *model.CrawlPage) error {
	page.FetchedAt = c.now()
	if _, err := c.pages.Create(ctx, page); err != nil {
		return fmt.Errorf("persist crawl page %s: %w", page.URL, err)
	}
	metrics.ObserveCrawlPage(string(page.Outcome))
	return nil
}
