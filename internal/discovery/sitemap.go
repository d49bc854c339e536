package discovery

import (
	"context"
	"encoding/xml"
	"net/url"
)

// maxSitemapDepth bounds nested sitemap-index recursion.
const maxSitemapDepth = 2

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// collectSitemaps fetches the conventional /sitemap.xml plus any sitemaps
// declared in robots.txt, following nested indexes. Failures are silent;
// sitemaps are an optional signal.
func (d *Discoverer) collectSitemaps(ctx context.Context, base *url.URL, declared []string) []string {
	locations := append([]string{base.String() + "/sitemap.xml"}, declared...)

	var out []string
	visited := map[string]bool{}
	for _, loc := range locations {
		out = append(out, d.fetchSitemap(ctx, loc, 0, visited)...)
	}
	return out
}

func (d *Discoverer) fetchSitemap(ctx context.Context, loc string, depth int, visited map[string]bool) []string {
	if depth > maxSitemapDepth || visited[loc] || ctx.Err() != nil {
		return nil
	}
	visited[loc] = true

	res, err := d.fetcher.Get(ctx, loc)
	if err != nil {
		return nil
	}

	// A sitemap index references further sitemaps rather than pages.
	var idx sitemapIndex
	if err := xml.Unmarshal(res.Body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		var out []string
		for _, sm := range idx.Sitemaps {
			if sm.Loc == "" {
				continue
			}
			out = append(out, d.fetchSitemap(ctx, sm.Loc, depth+1, visited)...)
		}
		return out
	}

	var us sitemapURLSet
	if err := xml.Unmarshal(res.Body, &us); err != nil {
		return nil
	}
	out := make([]string, 0, len(us.URLs))
	for _, u := range us.URLs {
		if u.Loc != "" {
			out = append(out, u.Loc)
		}
	}
	return out
}
