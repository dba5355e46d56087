package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
)

// stubPageRepo collects persisted pages in memory.
type stubPageRepo struct {
	pages []*model.CrawlPage
}

func (r *stubPageRepo) Create(_ context.Context, page *model.CrawlPage) (*model.CrawlPage, error) {
	r.pages = append(r.pages, page)
	return page, nil
}

func (r *stubPageRepo) ListByRun(_ context.Context, runID string) ([]*model.CrawlPage, error) {
	var out []*model.CrawlPage
	for _, p := range r.pages {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubPageRepo) DeleteOlderThan(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (r *stubPageRepo) byURLSuffix(suffix string) *model.CrawlPage {
	for _, p := range r.pages {
		if strings.HasSuffix(p.URL, suffix) {
			return p
		}
	}
	return nil
}

func testCrawlerConfig() config.CrawlerConfig {
	cfg := config.CrawlerConfig{
		MaxDepth:       2,
		MaxPages:       25,
		MinDelay:       100 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
		UserAgent:      "poiaudit-crawler/1.0",
	}
	return cfg
}

func newTestCrawler(t *testing.T, repo *stubPageRepo, cfg config.CrawlerConfig) *Crawler {
	t.Helper()
	c, err := New(Options{
		Pages:  repo,
		Config: cfg,
		Now:    func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return c
}

func TestCrawler_Run_FollowsLinksAndCollectsJSONLD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /intern\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<script type="application/ld+json">{"@type":"LocalBusiness","telephone":"+49 8321 123"}</script>
		</head><body>
			<a href="/kontakt">Kontakt</a>
			<a href="/intern/preise">Intern</a>
		</body></html>`))
	})
	mux.HandleFunc("/kontakt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>Kontaktdaten</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := &stubPageRepo{}
	c := newTestCrawler(t, repo, testCrawlerConfig())

	summary, err := c.Run(context.Background(), "poi-1", srv.URL, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PagesFetched)
	assert.Equal(t, 1, summary.PagesSkipped)
	assert.Equal(t, 0, summary.PageErrors)
	assert.JSONEq(t,
		`{
			"contact": {"phone": "+49 8321 123"},
			"entities": [{"@type":"LocalBusiness","telephone":"+49 8321 123"}]
		}`,
		string(summary.StructData),
	)

	require.Len(t, repo.pages, 3)
	blocked := repo.byURLSuffix("/intern/preise")
	require.NotNil(t, blocked)
	assert.Equal(t, model.PageSkippedRobots, blocked.Outcome)

	kontakt := repo.byURLSuffix("/kontakt")
	require.NotNil(t, kontakt)
	assert.Equal(t, model.PageFetched, kontakt.Outcome)
	assert.Equal(t, 1, kontakt.Depth)
	assert.Equal(t, summary.RunID, kontakt.RunID)
}

func TestCrawler_Run_PageErrorsDoNotAbort(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/kaputt">Broken</a><a href="/ok">OK</a></body></html>`))
	})
	mux.HandleFunc("/kaputt", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>ok</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := &stubPageRepo{}
	c := newTestCrawler(t, repo, testCrawlerConfig())

	summary, err := c.Run(context.Background(), "poi-1", srv.URL, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PagesFetched)
	assert.Equal(t, 1, summary.PageErrors)

	broken := repo.byURLSuffix("/kaputt")
	require.NotNil(t, broken)
	assert.Equal(t, model.PageError, broken.Outcome)
	assert.Equal(t, http.StatusInternalServerError, broken.HTTPStatus)
	require.NotNil(t, broken.FetchError)
	assert.Contains(t, *broken.FetchError, "500")
}

func TestCrawler_Run_StaysOnRegistrableDomain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="https://other.example.org/offsite">Offsite</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := &stubPageRepo{}
	c := newTestCrawler(t, repo, testCrawlerConfig())

	summary, err := c.Run(context.Background(), "poi-1", srv.URL, 0)
	require.NoError(t, err)

	// The offsite link is never enqueued, so only the start page is recorded.
	assert.Equal(t, 1, summary.PagesFetched)
	require.Len(t, repo.pages, 1)
	assert.Nil(t, repo.byURLSuffix("/offsite"))
}

func TestCrawler_Run_HonorsMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		// Every page links to three more, so the frontier always outruns
		// the page budget.
		_, _ = w.Write([]byte(`<html><body>
			<a href="` + r.URL.Path + `a">A</a>
			<a href="` + r.URL.Path + `b">B</a>
			<a href="` + r.URL.Path + `c">C</a>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testCrawlerConfig()
	cfg.MaxPages = 4
	cfg.MaxDepth = 10

	repo := &stubPageRepo{}
	c := newTestCrawler(t, repo, cfg)

	summary, err := c.Run(context.Background(), "poi-1", srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.PagesFetched)
}

func TestCrawler_Run_AllFetchesFailingFailsTheRun(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	startURL := srv.URL
	srv.Close()

	repo := &stubPageRepo{}
	c := newTestCrawler(t, repo, testCrawlerConfig())

	_, err := c.Run(context.Background(), "poi-1", startURL, 0)
	require.Error(t, err)
	assert.Equal(t, obserrors.FailureTransient, obserrors.KindOf(err))

	// The failed fetch is still recorded for inspection.
	require.Len(t, repo.pages, 1)
	assert.Equal(t, model.PageError, repo.pages[0].Outcome)
}

func TestCrawler_Run_InvalidStartURLIsPermanentInput(t *testing.T) {
	repo := &stubPageRepo{}
	c := newTestCrawler(t, repo, testCrawlerConfig())

	_, err := c.Run(context.Background(), "poi-1", "not a url", 0)
	require.Error(t, err)
	assert.Equal(t, obserrors.FailurePermanentInput, obserrors.KindOf(err))
	assert.Empty(t, repo.pages)
}
