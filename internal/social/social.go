// Package social extracts the company's social media profile links from
// already fetched page HTML.
package social

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/model"
)

// Extractor scans page HTML for social profile links.
type Extractor struct {
	selectors []string
	hosts     map[string]model.Platform
	excludes  []string
	platforms map[model.Platform]bool
}

// New builds an Extractor from config plus the built-in tables. The optional
// tables file extends selectors and exclude patterns and can add hosts.
func New(cfg config.SocialConfig) (*Extractor, error) {
	e := &Extractor{
		selectors: append([]string{}, defaultConsentSelectors...),
		excludes:  append([]string{}, defaultExcludePatterns...),
		hosts:     map[string]model.Platform{},
		platforms: map[model.Platform]bool{},
	}
	for h, p := range defaultPlatformHosts {
		e.hosts[h] = p
	}

	if cfg.TablesFile != "" {
		tf, err := loadTables(cfg.TablesFile)
		if err != nil {
			return nil, err
		}
		e.selectors = append(e.selectors, tf.ConsentSelectors...)
		e.excludes = append(e.excludes, tf.ExcludePatterns...)
		for h, p := range tf.PlatformHosts {
			e.hosts[strings.ToLower(h)] = model.Platform(p)
		}
	}

	e.selectors = append(e.selectors, cfg.ConsentSelectors...)
	e.excludes = append(e.excludes, cfg.ExcludePatterns...)

	// Empty platform list means all platforms.
	if len(cfg.Platforms) == 0 {
		for _, p := range model.AllPlatforms {
			e.platforms[p] = true
		}
	} else {
		for _, p := range cfg.Platforms {
			e.platforms[model.Platform(p)] = true
		}
	}

	return e, nil
}

// FromPages scans pages in fetch order and returns one profile URL per
// platform. The first occurrence of a platform wins.
func (e *Extractor) FromPages(pages []extraction.PageContent) map[model.Platform]string {
	found := map[model.Platform]string{}
	for _, p := range pages {
		if p.Err != nil || p.RawHTML == "" {
			continue
		}
		e.scanPage(p.RawHTML, found)
	}
	if len(found) > 0 {
		zap.L().Debug("social links found", zap.Int("platforms", len(found)))
	}
	return found
}

func (e *Extractor) scanPage(html string, found map[model.Platform]string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	for _, sel := range e.selectors {
		doc.Find(sel).Remove()
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		platform, cleaned, ok := e.Classify(href)
		if !ok || !e.platforms[platform] {
			return
		}
		if _, exists := found[platform]; !exists {
			found[platform] = cleaned
		}
	})
}

// Classify maps a URL to its platform and returns the cleaned profile URL.
// Share-intent and embed URLs are rejected.
func (e *Extractor) Classify(href string) (model.Platform, string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	platform, ok := e.hosts[host]
	if !ok {
		// Subdomains of a known host count (e.g. uk.linkedin.com).
		for h, p := range e.hosts {
			if strings.HasSuffix(host, "."+h) {
				platform, ok = p, true
				break
			}
		}
	}
	if !ok {
		return "", "", false
	}

	probe := strings.ToLower(host + u.Path)
	for _, pattern := range e.excludes {
		if strings.Contains(probe, strings.ToLower(pattern)) {
			return "", "", false
		}
	}

	// A bare platform homepage is not a company profile.
	if u.Path == "" || u.Path == "/" {
		return "", "", false
	}

	return platform, cleanProfileURL(u), true
}

// cleanProfileURL strips tracking parameters and fragments.
func cleanProfileURL(u *url.URL) string {
	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(strings.ToLower(param), "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
