package social

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bizintel/internal/model"
)

// defaultConsentSelectors are removed from the DOM before link extraction so
// cookie and consent overlays cannot contribute social links that belong to
// the consent vendor rather than the company.
var defaultConsentSelectors = []string{
	"#onetrust-banner-sdk",
	"#onetrust-consent-sdk",
	"#CybotCookiebotDialog",
	"#cookiescript_injected",
	"#cookie-banner",
	"#cookie-notice",
	"#cookie-consent",
	"#cookie-law-info-bar",
	"#cookieConsent",
	"#gdpr-banner",
	"#gdpr-cookie-message",
	"#cmplz-cookiebanner-container",
	"#usercentrics-root",
	"#didomi-host",
	"#truste-consent-track",
	"#qc-cmp2-container",
	"#sp_message_container",
	".cc-window",
	".cc-banner",
	".cookie-banner",
	".cookie-notice",
	".cookie-consent",
	".cookie-popup",
	".cookie-bar",
	".cookies-eu-banner",
	".cookiealert",
	".gdpr-banner",
	".consent-banner",
	".consent-popup",
	".osano-cm-window",
	".termly-styles-root",
	".iubenda-cs-container",
	"[aria-label='cookieconsent']",
	"[data-cookiebanner]",
	"[id^='sp_message_container_']",
}

// defaultPlatformHosts maps registrable hosts to platforms.
var defaultPlatformHosts = map[string]model.Platform{
	"facebook.com":    model.PlatformFacebook,
	"fb.com":          model.PlatformFacebook,
	"fb.me":           model.PlatformFacebook,
	"twitter.com":     model.PlatformTwitter,
	"x.com":           model.PlatformTwitter,
	"linkedin.com":    model.PlatformLinkedIn,
	"lnkd.in":         model.PlatformLinkedIn,
	"instagram.com":   model.PlatformInstagram,
	"instagr.am":      model.PlatformInstagram,
	"youtube.com":     model.PlatformYouTube,
	"youtu.be":        model.PlatformYouTube,
	"tiktok.com":      model.PlatformTikTok,
	"github.com":      model.PlatformGitHub,
	"pinterest.com":   model.PlatformPinterest,
	"medium.com":      model.PlatformMedium,
	"reddit.com":      model.PlatformReddit,
	"discord.com":     model.PlatformDiscord,
	"discord.gg":      model.PlatformDiscord,
	"twitch.tv":       model.PlatformTwitch,
	"vimeo.com":       model.PlatformVimeo,
	"threads.net":     model.PlatformThreads,
	"mastodon.social": model.PlatformMastodon,
}

// defaultExcludePatterns drop share-intent and embed URLs that point at the
// platform's sharing machinery instead of the company's profile.
var defaultExcludePatterns = []string{
	"twitter.com/intent",
	"x.com/intent",
	"facebook.com/sharer",
	"facebook.com/share.php",
	"facebook.com/dialog",
	"linkedin.com/sharearticle",
	"linkedin.com/sharing",
	"linkedin.com/shareArticle",
	"pinterest.com/pin/create",
	"reddit.com/submit",
	"youtube.com/embed",
	"youtube.com/watch",
	"player.vimeo.com",
}

// trackingParams are stripped from matched profile URLs.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "igshid": true,
	"ref": true, "ref_src": true, "ref_url": true, "src": true,
	"mc_cid": true, "mc_eid": true, "s": true,
}

// tablesFile is the optional YAML override for the built-in tables.
type tablesFile struct {
	ConsentSelectors []string          `yaml:"consent_selectors"`
	PlatformHosts    map[string]string `yaml:"platform_hosts"`
	ExcludePatterns  []string          `yaml:"exclude_patterns"`
}

// loadTables reads a YAML tables file and merges it over the defaults.
func loadTables(path string) (*tablesFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "social: read tables file")
	}
	var tf tablesFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, eris.Wrap(err, "social: parse tables file")
	}
	return &tf, nil
}
