package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeURL canonicalises a URL for the visited set: lowercased scheme and
// host, default ports and fragments stripped, trailing slash removed from
// non-root paths. Two spellings of the same page normalize identically.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host, port, found := strings.Cut(u.Host, ":")
	if found {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
		}
	}

	if u.Path == "" {
		u.Path = "/"
	} else if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String(), nil
}

// sameRegistrableDomain reports whether two hosts share an effective
// top-level-domain-plus-one. The crawl never leaves the start URL's
// registrable domain, so www.example.com and shop.example.com are in scope
// while example.co.uk and another.co.uk are not conflated.
func sameRegistrableDomain(hostA, hostB string) bool {
	a, errA := publicsuffix.EffectiveTLDPlusOne(stripPort(hostA))
	b, errB := publicsuffix.EffectiveTLDPlusOne(stripPort(hostB))
	if errA != nil || errB != nil {
		return strings.EqualFold(stripPort(hostA), stripPort(hostB))
	}
	return strings.EqualFold(a, b)
}

func stripPort(host string) string {
	if h, _, found := strings.Cut(host, ":"); found {
		return h
	}
	return host
}
