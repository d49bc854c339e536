// Package extraction fetches the selected pages in parallel and reduces
// each to clean markdown for the aggregation prompt.
package extraction

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/fetch"
)

// Renderer is the optional JS-rendering path.
type Renderer interface {
	Render(ctx context.Context, rawURL, waitFor string) (string, error)
}

// PageContent is one extracted page. Err is set when the page could not be
// fetched; the slice position still holds its place so results stay in
// input order.
type PageContent struct {
	URL      string
	FinalURL string
	Title    string
	// Text is cleaned markdown, capped at max_chars.
	Text    string
	RawHTML string
	Chars   int
	Err     error
}

// Extractor pulls page content with bounded parallelism.
type Extractor struct {
	fetcher  *fetch.Fetcher
	renderer Renderer
	cfg      config.ExtractionConfig
}

// New builds an Extractor. renderer may be nil when JS rendering is off.
func New(fetcher *fetch.Fetcher, renderer Renderer, cfg config.ExtractionConfig) *Extractor {
	return &Extractor{fetcher: fetcher, renderer: renderer, cfg: cfg}
}

// ExtractAll fetches every URL concurrently and returns one PageContent per
// input, in input order. Individual page failures are recorded in place and
// never abort the batch.
func (e *Extractor) ExtractAll(ctx context.Context, urls []string) []PageContent {
	results := make([]PageContent, len(urls))
	sem := semaphore.NewWeighted(int64(max(e.cfg.Concurrency, 1)))

	for i, u := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(urls); j++ {
				results[j] = PageContent{URL: urls[j], Err: err}
			}
			break
		}
		go func(i int, u string) {
			defer sem.Release(1)
			results[i] = e.extractOne(ctx, u)
		}(i, u)
	}

	// Drain: acquiring full weight waits for all in-flight workers.
	_ = sem.Acquire(context.Background(), int64(max(e.cfg.Concurrency, 1)))
	return results
}

func (e *Extractor) extractOne(ctx context.Context, rawURL string) PageContent {
	pageCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.PageTimeoutSecs)*time.Second)
	defer cancel()

	pc := PageContent{URL: rawURL, FinalURL: rawURL}

	var html string
	if e.cfg.UseBrowser && e.renderer != nil {
		rendered, err := e.renderer.Render(pageCtx, rawURL, "")
		if err != nil {
			pc.Err = err
			return pc
		}
		html = rendered
	} else {
		res, err := e.fetcher.Get(pageCtx, rawURL)
		if err != nil {
			pc.Err = err
			return pc
		}
		html = string(res.Body)
		pc.FinalURL = res.FinalURL
	}

	pc.RawHTML = html
	pc.Title, pc.Text = Clean(html, rawURL, e.cfg.MaxChars)
	pc.Chars = len(pc.Text)

	zap.L().Debug("page extracted",
		zap.String("url", rawURL),
		zap.Int("chars", pc.Chars))
	return pc
}

// Chrome elements stripped before conversion. Headings, lists, and main
// content blocks survive.
const strippedSelectors = "script, style, noscript, iframe, svg, form, nav, footer, header, aside"

var blankLines = regexp.MustCompile(`\n{3,}`)

// Clean reduces raw HTML to a title and capped, NFC-normalized markdown.
func Clean(html, pageURL string, maxChars int) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", truncate(norm.NFC.String(html), maxChars)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(strippedSelectors).Remove()

	// Prefer the semantic content root when the page has one.
	content := doc.Find("main, article").First()
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}

	var converted string
	if inner, err := content.Html(); err == nil {
		domain := ""
		if u, err := url.Parse(pageURL); err == nil {
			domain = u.Hostname()
		}
		converter := htmlmd.NewConverter(domain, true, nil)
		if md, err := converter.ConvertString(inner); err == nil {
			converted = md
		}
	}
	if converted == "" {
		converted = content.Text()
	}

	converted = norm.NFC.String(converted)
	converted = blankLines.ReplaceAllString(converted, "\n\n")
	converted = strings.TrimSpace(converted)

	return title, truncate(converted, maxChars)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
