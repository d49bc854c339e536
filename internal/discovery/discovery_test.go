package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/fetch"
)

func testFetcher() *fetch.Fetcher {
	return fetch.New(config.HTTPConfig{
		UserAgent:      "test-agent",
		AcceptLanguage: "en-US",
		TimeoutSecs:    5,
		MaxRetries:     0,
		MaxBytes:       1 << 20,
	})
}

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		Depth:         3,
		MaxURLs:       1000,
		Phase1PageCap: 50,
		StripQuery:    true,
		ExcludeRegex:  `(?i)\.(png|pdf|css|js)(\?|$)`,
	}
}

func pageURLs(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.URL
	}
	return out
}

func TestDiscoverCrawlsSameHostLinks(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/about">About</a>
			<a href="/about#team">Team anchor</a>
			<a href="%s/contact?utm_source=x">Contact</a>
			<a href="https://external.example/other">External</a>
			<a href="/logo.png">Logo</a>
		</body></html>`, srvURL)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="/careers">Careers</a></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>reach us</html>`)
	})
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>jobs</html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	res := New(testFetcher(), testDiscoveryConfig()).Discover(context.Background(), srv.URL)

	urls := pageURLs(res.Pages)
	assert.Equal(t, srv.URL, res.Origin)
	assert.Equal(t, srv.URL, urls[0], "origin is always first")
	assert.Contains(t, urls, srv.URL+"/about")
	assert.Contains(t, urls, srv.URL+"/contact")
	assert.Contains(t, urls, srv.URL+"/careers")
	assert.NotContains(t, urls, "https://external.example/other")
	for _, u := range urls {
		assert.NotContains(t, u, "#")
		assert.NotContains(t, u, "utm_source")
		assert.NotContains(t, u, ".png")
	}
}

func TestDiscoverUsesSitemapAndRobots(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="/pricing">Pricing</a></html>`)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nDisallow: /admin\nSitemap: %s/sitemap.xml\n", srvURL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset><url><loc>%s/products</loc></url><url><loc>%s/pricing</loc></url></urlset>`, srvURL, srvURL)
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>plans</html>`)
	})
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>stuff</html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	res := New(testFetcher(), testDiscoveryConfig()).Discover(context.Background(), srv.URL)

	bySource := map[string]Source{}
	for _, p := range res.Pages {
		bySource[p.URL] = p.Source
	}
	assert.Equal(t, SourceSitemap, bySource[srv.URL+"/products"])
	// Found via both sitemap and crawl; sitemap wins.
	assert.Equal(t, SourceSitemap, bySource[srv.URL+"/pricing"])
	assert.Equal(t, SourceRobots, bySource[srv.URL+"/admin"])
}

func TestDiscoverNestedSitemapIndex(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html></html>`)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex><sitemap><loc>%s/sitemap-pages.xml</loc></sitemap></sitemapindex>`, srvURL)
	})
	mux.HandleFunc("/sitemap-pages.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset><url><loc>%s/team</loc></url></urlset>`, srvURL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	res := New(testFetcher(), testDiscoveryConfig()).Discover(context.Background(), srv.URL)
	assert.Contains(t, pageURLs(res.Pages), srv.URL+"/team")
}

func TestDiscoverRespectsRobotsDisallowForCrawl(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="/private/secret">Secret</a><a href="/open">Open</a></html>`)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>open</html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := New(testFetcher(), testDiscoveryConfig()).Discover(context.Background(), srv.URL)
	urls := pageURLs(res.Pages)
	assert.Contains(t, urls, srv.URL+"/open")
	assert.NotContains(t, urls, srv.URL+"/private/secret")
}

func TestKeepAcceptsWWWVariant(t *testing.T) {
	t.Parallel()
	d := New(testFetcher(), testDiscoveryConfig())

	base, err := url.Parse("https://acme.example")
	require.NoError(t, err)
	assert.True(t, d.keep(base, "https://acme.example/about"))
	assert.True(t, d.keep(base, "https://www.acme.example/about"))
	assert.False(t, d.keep(base, "https://shop.acme.example/about"))
	assert.False(t, d.keep(base, "https://notacme.example/"))

	wwwBase, err := url.Parse("https://www.acme.example")
	require.NoError(t, err)
	assert.True(t, d.keep(wwwBase, "https://acme.example/team"))
}

func TestDiscoverNeverFails(t *testing.T) {
	t.Parallel()
	// Nothing is listening on this address.
	res := New(testFetcher(), testDiscoveryConfig()).
		Discover(context.Background(), "http://127.0.0.1:1/")
	require.NotEmpty(t, res.Pages)
	assert.Equal(t, "http://127.0.0.1:1", res.Origin)
	assert.Equal(t, res.Origin, res.Pages[0].URL)
}

func TestDiscoverHonorsURLCap(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 50; i++ {
			fmt.Fprintf(w, `<a href="/p%d">p</a>`, i)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testDiscoveryConfig()
	cfg.MaxURLs = 10
	res := New(testFetcher(), cfg).Discover(context.Background(), srv.URL)
	assert.Len(t, res.Pages, 10)
	assert.True(t, res.Truncated)
}
