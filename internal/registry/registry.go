// Package registry recognises links to supported platforms in message text.
package registry

import (
	"regexp"
	"strings"
)

// Platform identifies a handler family.
type Platform string

const (
	TikTok    Platform = "tiktok"
	Instagram Platform = "instagram"
	Reddit    Platform = "reddit"
	Twitter   Platform = "twitter"
	Bluesky   Platform = "bluesky"
	IMDb      Platform = "imdb"
	TMDB      Platform = "tmdb"
	Trakt     Platform = "trakt"
	Songs     Platform = "songs"
	Steam     Platform = "steam"
)

// ConfigKey is the key used for settings and usage counters. The movie
// database platforms share one key.
func (p Platform) ConfigKey() string {
	switch p {
	case TMDB, Trakt:
		return string(IMDb)
	}
	return string(p)
}

var displayNames = map[string]string{
	"tiktok":    "TikTok",
	"instagram": "Instagram",
	"reddit":    "Reddit",
	"twitter":   "Twitter",
	"bluesky":   "Bluesky",
	"imdb":      "IMDb",
	"songs":     "Songs",
	"steam":     "Steam",
}

// DisplayName is the human readable name of a config key.
func DisplayName(key string) string {
	if n, ok := displayNames[key]; ok {
		return n
	}
	return key
}

// ConfigKeys lists every settings key in display order.
func ConfigKeys() []string {
	return []string{"tiktok", "instagram", "reddit", "twitter", "bluesky", "imdb", "songs", "steam"}
}

// LookupKey finds a config key by its key or display name, case-insensitively.
func LookupKey(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range ConfigKeys() {
		if k == name || strings.ToLower(displayNames[k]) == name {
			return k, true
		}
	}
	return "", false
}

// LinkMatch is the result of matching one link in a message.
type LinkMatch struct {
	Platform Platform
	RawURL   string
	// Groups holds the capture groups of the pattern, Groups[0] excluded.
	Groups []string
}

// Pattern ties a regular expression to the platform that handles it.
type Pattern struct {
	Platform Platform
	Expr     string
}

// DefaultPatterns is the built-in recogniser list in priority order.
var DefaultPatterns = []Pattern{
	{TikTok, `https?://(?:www\.)?(?:(?:vm|vt)\.tiktok\.com/[A-Za-z0-9]+|tiktok\.com/@[\w.]+/(video|photo)/\d+/?|tiktok\.com/t/[A-Za-z0-9]+/?)`},
	{Instagram, `https?://(?:www\.)?instagram\.com/(?:p|reel|reels)/([^/?#&\s|>]+)/?(?:\?[^#\s|>]*)?`},
	{Reddit, `https?://(?:(?:(?:www|old|new)\.)?reddit\.com/r/(\w+)/(?:comments|s)/\w+(?:/[^\s?#|>]*)?|redd\.it/\w+)`},
	{Twitter, `https?://(?:www\.)?(?:twitter|x)\.com/(\w+)/status/(\d+)`},
	{Bluesky, `https?://(?:www\.)?bsky\.app/profile/([A-Za-z0-9.:-]+)/post/([A-Za-z0-9]+)`},
	{IMDb, `https?://(?:(?:www|m)\.)?imdb\.com/title/(tt\d{7,10})`},
	{TMDB, `https?://(?:www\.)?themoviedb\.org/(movie|tv)/(\d+)`},
	{Trakt, `https?://(?:(?:www|app)\.)?trakt\.tv/(movies|shows)/([\w-]+)`},
	{Songs, `https?://(?:open\.spotify\.com/(?:intl-[\w-]+/)?track/\w+|spotify\.link/\w+|music\.apple\.com/\w{2}/(?:album|song)/[^\s/]+/\d+(?:\?i=\d+)?|youtu\.be/[\w-]+|(?:www\.|music\.)?youtube\.com/watch\?v=[\w-]+)`},
	{Steam, `https?://(?:store\.steampowered\.com|steamcommunity\.com)/app/(\d+)`},
}

type entry struct {
	platform Platform
	search   *regexp.Regexp
	anchored *regexp.Regexp
}

// Registry holds compiled patterns. It is safe for concurrent use.
type Registry struct {
	entries []entry
}

// New compiles patterns in the given order. It panics on an invalid
// expression, since patterns are fixed at build time.
func New(patterns []Pattern) *Registry {
	r := &Registry{}
	for _, p := range patterns {
		r.entries = append(r.entries, entry{
			platform: p.Platform,
			search:   regexp.MustCompile(p.Expr),
			anchored: regexp.MustCompile(`^(?:` + p.Expr + `)`),
		})
	}
	return r
}

// Default returns a registry built from DefaultPatterns.
func Default() *Registry {
	return New(DefaultPatterns)
}

// Match returns the first link found in text, trying platforms in registry
// order. Leading and trailing angle brackets are ignored.
func (r *Registry) Match(text string) (LinkMatch, bool) {
	text = strings.Trim(text, "<>")
	for _, e := range r.entries {
		if m := e.search.FindStringSubmatch(text); m != nil {
			return LinkMatch{Platform: e.platform, RawURL: m[0], Groups: m[1:]}, true
		}
	}
	return LinkMatch{}, false
}

// MatchLink matches a link given to a command. The link must start with a
// recognised URL.
func (r *Registry) MatchLink(link string) (LinkMatch, bool) {
	link = strings.Trim(strings.TrimSpace(link), "<>")
	for _, e := range r.entries {
		if m := e.anchored.FindStringSubmatch(link); m != nil {
			return LinkMatch{Platform: e.platform, RawURL: m[0], Groups: m[1:]}, true
		}
	}
	return LinkMatch{}, false
}

// MatchPlatform is MatchLink restricted to one platform.
func (r *Registry) MatchPlatform(p Platform, link string) (LinkMatch, bool) {
	link = strings.Trim(strings.TrimSpace(link), "<>")
	for _, e := range r.entries {
		if e.platform != p {
			continue
		}
		if m := e.anchored.FindStringSubmatch(link); m != nil {
			return LinkMatch{Platform: e.platform, RawURL: m[0], Groups: m[1:]}, true
		}
	}
	return LinkMatch{}, false
}
