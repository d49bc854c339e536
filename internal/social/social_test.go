package social

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/model"
)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(config.SocialConfig{})
	require.NoError(t, err)
	return e
}

func TestFromPagesFindsProfiles(t *testing.T) {
	t.Parallel()
	html := `<html><body>
		<footer-links>
			<a href="https://www.facebook.com/acmecorp">Facebook</a>
			<a href="https://x.com/acmecorp?ref_src=twsrc">Twitter</a>
			<a href="https://www.linkedin.com/company/acme-corp/">LinkedIn</a>
			<a href="https://github.com/acme">GitHub</a>
		</footer-links>
	</body></html>`

	got := newExtractor(t).FromPages([]extraction.PageContent{{URL: "https://acme.test", RawHTML: html}})

	assert.Equal(t, "https://www.facebook.com/acmecorp", got[model.PlatformFacebook])
	assert.Equal(t, "https://x.com/acmecorp", got[model.PlatformTwitter], "tracking param stripped")
	assert.Equal(t, "https://www.linkedin.com/company/acme-corp", got[model.PlatformLinkedIn])
	assert.Equal(t, "https://github.com/acme", got[model.PlatformGitHub])
}

func TestFromPagesIgnoresConsentOverlayLinks(t *testing.T) {
	t.Parallel()
	html := `<html><body>
		<div id="onetrust-banner-sdk">
			<a href="https://www.facebook.com/onetrust">Vendor</a>
		</div>
		<div class="cookie-banner">
			<a href="https://twitter.com/cookievendor">Vendor</a>
		</div>
		<footer><a href="https://www.facebook.com/acmecorp">Us</a></footer>
	</body></html>`

	got := newExtractor(t).FromPages([]extraction.PageContent{{RawHTML: html}})

	assert.Equal(t, "https://www.facebook.com/acmecorp", got[model.PlatformFacebook])
	_, hasTwitter := got[model.PlatformTwitter]
	assert.False(t, hasTwitter)
}

func TestFromPagesRejectsShareIntents(t *testing.T) {
	t.Parallel()
	html := `<html><body>
		<a href="https://twitter.com/intent/tweet?url=https://acme.test">Share</a>
		<a href="https://www.facebook.com/sharer/sharer.php?u=https://acme.test">Share</a>
		<a href="https://www.linkedin.com/shareArticle?mini=true&url=https://acme.test">Share</a>
	</body></html>`

	got := newExtractor(t).FromPages([]extraction.PageContent{{RawHTML: html}})
	assert.Empty(t, got)
}

func TestFromPagesFirstOccurrenceWins(t *testing.T) {
	t.Parallel()
	page1 := `<html><a href="https://github.com/acme">first</a></html>`
	page2 := `<html><a href="https://github.com/acme-labs">second</a></html>`

	got := newExtractor(t).FromPages([]extraction.PageContent{
		{RawHTML: page1}, {RawHTML: page2},
	})
	assert.Equal(t, "https://github.com/acme", got[model.PlatformGitHub])
}

func TestClassify(t *testing.T) {
	t.Parallel()
	e := newExtractor(t)

	tests := []struct {
		name string
		href string
		want model.Platform
		ok   bool
	}{
		{"plain profile", "https://instagram.com/acme", model.PlatformInstagram, true},
		{"subdomain", "https://uk.linkedin.com/company/acme", model.PlatformLinkedIn, true},
		{"bare homepage", "https://facebook.com/", "", false},
		{"unknown host", "https://example.com/acme", "", false},
		{"mailto", "mailto:hi@acme.test", "", false},
		{"youtube watch", "https://www.youtube.com/watch?v=123", "", false},
		{"short host", "https://youtu.be/abc123", model.PlatformYouTube, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, _, ok := e.Classify(tt.href)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPlatformFilter(t *testing.T) {
	t.Parallel()
	e, err := New(config.SocialConfig{Platforms: []string{"github"}})
	require.NoError(t, err)

	html := `<html>
		<a href="https://github.com/acme">gh</a>
		<a href="https://facebook.com/acme">fb</a>
	</html>`
	got := e.FromPages([]extraction.PageContent{{RawHTML: html}})

	assert.Len(t, got, 1)
	assert.Contains(t, got, model.PlatformGitHub)
}

func TestTablesFileOverrides(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
consent_selectors:
  - ".custom-consent"
platform_hosts:
  "bsky.app": "mastodon"
exclude_patterns:
  - "github.com/sponsors"
`), 0o644))

	e, err := New(config.SocialConfig{TablesFile: path})
	require.NoError(t, err)

	html := `<html>
		<div class="custom-consent"><a href="https://facebook.com/vendor">v</a></div>
		<a href="https://bsky.app/profile/acme">b</a>
		<a href="https://github.com/sponsors/acme">s</a>
	</html>`
	got := e.FromPages([]extraction.PageContent{{RawHTML: html}})

	assert.Equal(t, "https://bsky.app/profile/acme", got[model.PlatformMastodon])
	assert.NotContains(t, got, model.PlatformFacebook)
	assert.NotContains(t, got, model.PlatformGitHub)
}

func TestDefaultConsentSelectorCount(t *testing.T) {
	t.Parallel()
	assert.GreaterOrEqual(t, len(defaultConsentSelectors), 30)
}
