// Package discovery implements link discovery: it probes the site origin,
// reads robots.txt and sitemaps, and crawls same-host pages breadth-first to
// build the candidate URL set for page selection.
package discovery

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/fetch"
)

// Source records where a URL was discovered. When the same URL is found
// through multiple sources the highest-trust one wins.
type Source string

const (
	SourceSitemap Source = "sitemap"
	SourceRobots  Source = "robots"
	SourceCrawl   Source = "crawl"
)

func sourceRank(s Source) int {
	switch s {
	case SourceSitemap:
		return 3
	case SourceRobots:
		return 2
	default:
		return 1
	}
}

// Page is a discovered URL with provenance.
type Page struct {
	URL    string `json:"url"`
	Source Source `json:"source"`
	Depth  int    `json:"depth"`
}

// Result is the outcome of discovery for one site.
type Result struct {
	// Origin is the redirect-resolved scheme://host of the site.
	Origin string
	// Pages always starts with the origin itself.
	Pages []Page
	// Truncated is set when the URL cap cut the candidate set.
	Truncated bool
}

// Discoverer collects candidate URLs for a site.
type Discoverer struct {
	fetcher *fetch.Fetcher
	cfg     config.DiscoveryConfig
	exclude *regexp.Regexp
}

// New builds a Discoverer. An invalid exclude regex is ignored with a
// warning rather than failing the job.
func New(fetcher *fetch.Fetcher, cfg config.DiscoveryConfig) *Discoverer {
	var exclude *regexp.Regexp
	if cfg.ExcludeRegex != "" {
		var err error
		exclude, err = regexp.Compile(cfg.ExcludeRegex)
		if err != nil {
			zap.L().Warn("invalid discovery exclude regex, ignoring",
				zap.String("regex", cfg.ExcludeRegex), zap.Error(err))
		}
	}
	return &Discoverer{fetcher: fetcher, cfg: cfg, exclude: exclude}
}

// Discover builds the candidate URL set for website. It never fails: in the
// worst case the result contains only the resolved origin.
func (d *Discoverer) Discover(ctx context.Context, website string) *Result {
	log := zap.L().With(zap.String("website", website))

	rootURL := normalizeWebsite(website)
	res := &Result{}

	root, err := d.fetcher.Get(ctx, rootURL)
	if err != nil {
		log.Warn("root fetch failed, falling back to input origin", zap.Error(err))
		res.Origin = originOf(rootURL)
		res.Pages = []Page{{URL: res.Origin, Source: SourceCrawl, Depth: 0}}
		return res
	}

	res.Origin = originOf(root.FinalURL)
	base, err := url.Parse(res.Origin)
	if err != nil {
		res.Pages = []Page{{URL: res.Origin, Source: SourceCrawl, Depth: 0}}
		return res
	}

	seen := newPageSet(d.cfg.MaxURLs)
	seen.add(res.Origin, SourceCrawl, 0)

	robots := d.loadRobots(ctx, base)
	for _, u := range robots.pathURLs(base) {
		u = d.normalize(u)
		if d.keep(base, u) {
			seen.add(u, SourceRobots, 1)
		}
	}

	for _, loc := range d.collectSitemaps(ctx, base, robots.sitemaps) {
		loc = d.normalize(loc)
		if d.keep(base, loc) {
			seen.add(loc, SourceSitemap, 1)
		}
	}

	d.crawl(ctx, base, root.Body, seen, robots)

	res.Pages = seen.pages()
	res.Truncated = seen.truncated
	log.Info("discovery complete",
		zap.String("origin", res.Origin),
		zap.Int("urls", len(res.Pages)),
		zap.Bool("truncated", res.Truncated))
	return res
}

// crawl walks same-host links breadth-first starting from the already
// fetched root body. Fetches are bounded by the phase-1 page cap.
func (d *Discoverer) crawl(ctx context.Context, base *url.URL, rootBody []byte, seen *pageSet, robots *robotsInfo) {
	type item struct {
		url   string
		depth int
		body  []byte
	}

	queue := []item{{url: base.String(), depth: 0, body: rootBody}}
	visited := map[string]bool{base.String(): true}
	budget := d.cfg.Phase1PageCap

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return
		}
		cur := queue[0]
		queue = queue[1:]

		body := cur.body
		if body == nil {
			if budget <= 0 {
				continue
			}
			budget--
			res, err := d.fetcher.Get(ctx, cur.url)
			if err != nil {
				continue
			}
			body = res.Body
		}

		if cur.depth >= d.cfg.Depth {
			continue
		}

		for _, link := range extractLinks(base, cur.url, body) {
			link = d.normalize(link)
			if !d.keep(base, link) || !robots.allowed(link) {
				continue
			}
			if !seen.add(link, SourceCrawl, cur.depth+1) {
				continue
			}
			if !visited[link] {
				visited[link] = true
				queue = append(queue, item{url: link, depth: cur.depth + 1})
			}
		}
	}
}

// keep applies the same-site, scheme, and asset-exclusion filters.
func (d *Discoverer) keep(base *url.URL, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !sameSite(u.Hostname(), base.Hostname()) {
		return false
	}
	if d.exclude != nil && d.exclude.MatchString(raw) {
		return false
	}
	return true
}

// sameSite reports whether two hosts name the same site, treating the www
// and apex forms as equivalent. Other subdomains are different sites.
func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b
}

// normalize canonicalizes a discovered URL: fragment dropped, query
// optionally stripped, trailing slash trimmed off non-root paths.
func (d *Discoverer) normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if d.cfg.StripQuery {
		u.RawQuery = ""
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

func extractLinks(base *url.URL, pageURL string, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	pageBase, err := url.Parse(pageURL)
	if err != nil {
		pageBase = base
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		u, err := pageBase.Parse(href)
		if err != nil {
			return
		}
		out = append(out, u.String())
	})
	return out
}

func normalizeWebsite(website string) string {
	website = strings.TrimSpace(website)
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	return website
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// pageSet deduplicates discovered URLs with source-priority upgrades.
type pageSet struct {
	max       int
	index     map[string]int
	ordered   []Page
	truncated bool
}

func newPageSet(max int) *pageSet {
	return &pageSet{max: max, index: map[string]int{}}
}

func (ps *pageSet) add(rawURL string, src Source, depth int) bool {
	if i, ok := ps.index[rawURL]; ok {
		p := &ps.ordered[i]
		if sourceRank(src) > sourceRank(p.Source) {
			p.Source = src
		}
		if depth < p.Depth {
			p.Depth = depth
		}
		return false
	}
	if ps.max > 0 && len(ps.ordered) >= ps.max {
		ps.truncated = true
		return false
	}
	ps.index[rawURL] = len(ps.ordered)
	ps.ordered = append(ps.ordered, Page{URL: rawURL, Source: src, Depth: depth})
	return true
}

func (ps *pageSet) pages() []Page {
	return ps.ordered
}
