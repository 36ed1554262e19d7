// Package enrich fetches metadata for recognised links from upstream
// services and normalises it into a Record.
package enrich

import "errors"

// ErrNotFound is returned when an upstream has no result for the lookup.
var ErrNotFound = errors.New("no upstream result")

// Kind selects how a Record is rendered.
type Kind string

const (
	KindLink  Kind = "link"
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
	KindPost  Kind = "post"
	KindMovie Kind = "movie"
	KindSong  Kind = "song"
	KindGame  Kind = "game"
)

// Counts are engagement counters. A nil field is unknown and not shown.
type Counts struct {
	Likes    *int64 `json:"likes,omitempty"`
	Comments *int64 `json:"comments,omitempty"`
	Views    *int64 `json:"views,omitempty"`
}

// Any reports whether at least one counter is known.
func (c Counts) Any() bool {
	return c.Likes != nil || c.Comments != nil || c.Views != nil
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Record is the normalised result of enrichment. Empty fields mean the
// matching UI element is omitted.
type Record struct {
	Platform string `json:"platform"`
	Kind     Kind   `json:"kind"`
	// URL is the link posted in the reply.
	URL string `json:"url"`
	// SourceURL is the link as the user shared it.
	SourceURL   string   `json:"source_url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	AuthorURL   string   `json:"author_url,omitempty"`
	Counts      Counts   `json:"counts"`
	MediaURLs   []string `json:"media_urls,omitempty"`
	// AccentSourceURL is the image the accent colour is sampled from.
	AccentSourceURL string `json:"accent_source_url,omitempty"`
	// Accent is used when there is no AccentSourceURL. Zero means default.
	Accent int  `json:"accent,omitempty"`
	NSFW   bool `json:"nsfw,omitempty"`
	// Minimal records carry only a rewritten link.
	Minimal bool `json:"minimal,omitempty"`
	// Summarizable is set when a summary can be generated for the link.
	Summarizable bool `json:"summarizable,omitempty"`

	Media *Media `json:"-"`
	Movie *Movie `json:"movie,omitempty"`
	Song  *Song  `json:"song,omitempty"`
	Game  *Game  `json:"game,omitempty"`
	Post  *Post  `json:"post,omitempty"`
}

// Media is a file attached to the reply instead of a link preview.
type Media struct {
	Name        string
	ContentType string
	Data        []byte
}

// Movie extends a Record for movies and series.
type Movie struct {
	IMDbID   string   `json:"imdb_id"`
	TMDBID   string   `json:"tmdb_id,omitempty"`
	Series   bool     `json:"series,omitempty"`
	Year     string   `json:"year,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Runtime  string   `json:"runtime,omitempty"`
	Poster   string   `json:"poster,omitempty"`
	Trailers []string `json:"trailers,omitempty"`
	// FromIMDb is set when the shared link already pointed at IMDb.
	FromIMDb bool `json:"from_imdb,omitempty"`
}

// PlatformLink is one streaming platform's link to a song.
type PlatformLink struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// Song extends a Record for music links.
type Song struct {
	Artist    string         `json:"artist"`
	Title     string         `json:"title"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Links     []PlatformLink `json:"links,omitempty"`
	// SourcePlatform is the platform of the shared link, if known.
	SourcePlatform string `json:"source_platform,omitempty"`
}

// Game extends a Record for store pages.
type Game struct {
	AppID         string   `json:"app_id"`
	Price         string   `json:"price"`
	ReleaseDate   string   `json:"release_date"`
	Developer     string   `json:"developer"`
	Platforms     []string `json:"platforms,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Capsule       string   `json:"capsule,omitempty"`
	Screenshots   []string `json:"screenshots,omitempty"`
	AccountNotice string   `json:"account_notice,omitempty"`
	// Adult hides screenshots outside adult channels. The game itself is
	// never gated.
	Adult bool `json:"adult,omitempty"`
}

// Post extends a Record for discussion posts.
type Post struct {
	ID        string `json:"id"`
	Subreddit string `json:"subreddit"`
	Selftext  string `json:"selftext,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Upvotes   int64  `json:"upvotes"`
	Comments  int64  `json:"comments"`
	Image     string `json:"image,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Grid      []byte `json:"-"`
	Reply     *Reply `json:"reply,omitempty"`
}

// Reply is the top reply of a post, shown when the link targets it.
type Reply struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}
