package model

// Unknown is the sentinel for enumerated fields whose value could not be
// determined. Out-of-enum model output is coerced to it.
const Unknown = "unknown"

// Platform identifies a social-media platform in the closed platform set.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformGitHub    Platform = "github"
	PlatformPinterest Platform = "pinterest"
	PlatformMedium    Platform = "medium"
	PlatformReddit    Platform = "reddit"
	PlatformDiscord   Platform = "discord"
	PlatformTwitch    Platform = "twitch"
	PlatformVimeo     Platform = "vimeo"
	PlatformThreads   Platform = "threads"
	PlatformMastodon  Platform = "mastodon"
)

// AllPlatforms is the closed set of valid social_media keys.
var AllPlatforms = []Platform{
	PlatformFacebook, PlatformTwitter, PlatformLinkedIn, PlatformInstagram,
	PlatformYouTube, PlatformTikTok, PlatformGitHub, PlatformPinterest,
	PlatformMedium, PlatformReddit, PlatformDiscord, PlatformTwitch,
	PlatformVimeo, PlatformThreads, PlatformMastodon,
}

// ClassificationEnums maps each enumerated record field to its allowed values.
// The Unknown sentinel is always accepted in addition to these.
var ClassificationEnums = map[string][]string{
	"company_stage":       {"startup", "growth", "mature", "enterprise"},
	"tech_sophistication": {"low", "medium", "high"},
	"geographic_scope":    {"local", "regional", "national", "global"},
	"business_model_type": {"b2b", "b2c", "b2b2c", "marketplace", "nonprofit"},
	"decision_maker_type": {"technical", "business", "hybrid"},
	"sales_complexity":    {"simple", "moderate", "complex"},
	"saas_classification": {
		"horizontal_saas", "vertical_saas", "platform", "api_product",
		"services", "ecommerce", "not_saas",
	},
	"is_saas": {"yes", "no"},
}

// ValidEnumValue reports whether v is allowed for the named classification
// field. Unknown is always valid.
func ValidEnumValue(field, v string) bool {
	if v == Unknown {
		return true
	}
	for _, allowed := range ClassificationEnums[field] {
		if v == allowed {
			return true
		}
	}
	return false
}
