package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 * 1024

// robotsCache fetches and caches one robots.txt group per host for the
// lifetime of a crawl run. An unreachable or unparsable robots.txt yields an
// allow-all group: an unavailable policy file must not block the audit.
type robotsCache struct {
	client    *http.Client
	userAgent string
	groups    map[string]*robotstxt.Group
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// group returns the robots group governing the given page URL.
func (r *robotsCache) group(ctx context.Context, pageURL *url.URL) *robotstxt.Group {
	host := pageURL.Host
	if cached, ok := r.groups[host]; ok {
		return cached
	}

	group := r.fetch(ctx, pageURL.Scheme+"://"+host+"/robots.txt")
	r.groups[host] = group
	return group
}

func (r *robotsCache) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return allowAllGroup(r.userAgent)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return allowAllGroup(r.userAgent)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return allowAllGroup(r.userAgent)
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return allowAllGroup(r.userAgent)
	}
	return robots.FindGroup(r.userAgent)
}

// allowAllGroup synthesizes the group an empty robots.txt would produce.
func allowAllGroup(userAgent string) *robotstxt.Group {
	robots, err := robotstxt.FromString("")
	if err != nil {
		return nil
	}
	return robots.FindGroup(userAgent)
}

// allowed reports whether the group permits fetching the path. A nil group
// means no policy could be built at all, which also allows.
func allowed(group *robotstxt.Group, path string) bool {
	if group == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}
