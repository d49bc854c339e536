package discovery

import (
	"context"
	"net/url"
	"strings"

	robotstxt "github.com/temoto/robotstxt"
)

// robotsInfo holds the parsed robots.txt plus the raw directives the
// parser does not surface directly.
type robotsInfo struct {
	group    *robotstxt.Group
	sitemaps []string
	paths    []string
}

// loadRobots fetches and parses robots.txt. A missing or broken robots.txt
// yields a permissive result.
func (d *Discoverer) loadRobots(ctx context.Context, base *url.URL) *robotsInfo {
	info := &robotsInfo{}

	res, err := d.fetcher.Get(ctx, base.String()+"/robots.txt")
	if err != nil {
		return info
	}

	if data, err := robotstxt.FromBytes(res.Body); err == nil {
		info.group = data.FindGroup("*")
	}

	for _, line := range strings.Split(string(res.Body), "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "sitemap:"):
			if loc := strings.TrimSpace(line[len("sitemap:"):]); loc != "" {
				info.sitemaps = append(info.sitemaps, loc)
			}
		case strings.HasPrefix(lower, "allow:"), strings.HasPrefix(lower, "disallow:"):
			_, val, _ := strings.Cut(line, ":")
			path := strings.TrimSpace(val)
			if isConcretePath(path) {
				info.paths = append(info.paths, path)
			}
		}
	}

	return info
}

// pathURLs converts concrete Allow/Disallow paths into absolute URLs. Even
// disallowed paths reveal site structure worth offering to page selection.
func (r *robotsInfo) pathURLs(base *url.URL) []string {
	out := make([]string, 0, len(r.paths))
	for _, p := range r.paths {
		u, err := base.Parse(p)
		if err != nil {
			continue
		}
		out = append(out, u.String())
	}
	return out
}

// allowed reports whether the crawler may fetch the URL.
func (r *robotsInfo) allowed(rawURL string) bool {
	if r.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return r.group.Test(path)
}

// isConcretePath filters wildcard and root-only directives that do not name
// a real page.
func isConcretePath(p string) bool {
	if p == "" || p == "/" {
		return false
	}
	return !strings.ContainsAny(p, "*$")
}
