package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"linkfix/internal/cache"
)

// Streaming platform keys as song.link names them.
const (
	Spotify    = "spotify"
	AppleMusic = "appleMusic"
	YouTube    = "youtube"
)

var platformNames = []PlatformLink{
	{Platform: AppleMusic, Name: "Apple Music"},
	{Platform: Spotify, Name: "Spotify"},
	{Platform: YouTube, Name: "YouTube"},
}

// MaxSimilar is the number of suggested songs looked up.
const MaxSimilar = 5

// SourcePlatform names the streaming platform of a shared link.
func SourcePlatform(link string) string {
	switch {
	case strings.Contains(link, "spotify."):
		return Spotify
	case strings.Contains(link, "music.apple.com"):
		return AppleMusic
	case strings.Contains(link, "music.youtube.com"):
		return "youtubeMusic"
	case strings.Contains(link, "youtu"):
		return YouTube
	}
	return ""
}

// Link returns the URL for one platform, or "".
func (s *Song) Link(platform string) string {
	for _, l := range s.Links {
		if l.Platform == platform {
			return l.URL
		}
	}
	return ""
}

// Replyable reports whether the song is worth a reply. Plain YouTube links
// only qualify when they are also on a music service.
func (s *Song) Replyable() bool {
	switch s.SourcePlatform {
	case Spotify, AppleMusic:
		return true
	}
	return s.Link(YouTube) != "" && (s.Link(Spotify) != "" || s.Link(AppleMusic) != "")
}

// FromMusicService reports whether the shared link was on a music
// service rather than a plain video site.
func (s *Song) FromMusicService() bool {
	return s.SourcePlatform != "" && s.SourcePlatform != YouTube
}

// SongLink resolves a music link on every platform.
type SongLink struct {
	client  *resty.Client
	baseURL string
	cache   cache.Store
}

type songLinkResponse struct {
	EntityUniqueID  string `json:"entityUniqueId"`
	LinksByPlatform map[string]struct {
		URL            string `json:"url"`
		EntityUniqueID string `json:"entityUniqueId"`
	} `json:"linksByPlatform"`
	EntitiesByUniqueID map[string]struct {
		Title        string `json:"title"`
		ArtistName   string `json:"artistName"`
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"entitiesByUniqueId"`
}

// NewSongLink creates the provider.
func NewSongLink(baseURL string, timeout time.Duration, store cache.Store) *SongLink {
	if store == nil {
		store = cache.Nop{}
	}
	return &SongLink{client: newClient(timeout), baseURL: trimBase(baseURL), cache: store}
}

func (s *SongLink) GetName() string { return "songlink" }

func (s *SongLink) IsEnabled() bool { return true }

// Lookup returns a song record for link.
func (s *SongLink) Lookup(ctx context.Context, link string) (*Record, error) {
	song, err := cache.Fetch(ctx, s.cache, cache.Key("enrich.SongLink", link), cache.TTLMeta,
		func(ctx context.Context) (*Song, error) {
			var out songLinkResponse
			if err := getJSON(ctx, s.client, s.baseURL+"/v1-alpha.1/links?url="+url.QueryEscape(link), &out); err != nil {
				return nil, err
			}
			return out.song()
		})
	if err != nil {
		return nil, err
	}
	song.SourcePlatform = SourcePlatform(link)
	return &Record{
		Kind:            KindSong,
		URL:             link,
		SourceURL:       link,
		Title:           song.Artist + " - " + song.Title,
		AccentSourceURL: song.Thumbnail,
		Song:            song,
	}, nil
}

func (r songLinkResponse) song() (*Song, error) {
	id := r.EntityUniqueID
	if sp, ok := r.LinksByPlatform[Spotify]; ok && sp.EntityUniqueID != "" {
		id = sp.EntityUniqueID
	}
	e, ok := r.EntitiesByUniqueID[id]
	if !ok || e.ArtistName == "" || e.Title == "" || e.ThumbnailURL == "" {
		return nil, ErrNotFound
	}

	song := &Song{Artist: e.ArtistName, Title: e.Title, Thumbnail: e.ThumbnailURL}
	for _, p := range platformNames {
		l, ok := r.LinksByPlatform[p.Platform]
		if !ok || l.URL == "" {
			continue
		}
		p.URL = l.URL
		if p.Platform == Spotify {
			p.URL += "?autoplay=0"
		}
		song.Links = append(song.Links, p)
	}
	return song, nil
}

// SimilarTrack is a last.fm suggestion.
type SimilarTrack struct {
	Artist string `json:"artist"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

// LastFM finds similar tracks.
type LastFM struct {
	client  *resty.Client
	baseURL string
	token   string
	cache   cache.Store
	log     logrus.FieldLogger
}

// NewLastFM creates the provider. It is disabled without an API key.
func NewLastFM(baseURL, token string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *LastFM {
	if store == nil {
		store = cache.Nop{}
	}
	return &LastFM{
		client:  newClient(timeout),
		baseURL: trimBase(baseURL),
		token:   token,
		cache:   store,
		log:     logger.WithField("component", "lastfm"),
	}
}

func (l *LastFM) GetName() string { return "lastfm" }

func (l *LastFM) IsEnabled() bool { return l.token != "" }

// Similar returns up to MaxSimilar tracks like the given one.
func (l *LastFM) Similar(ctx context.Context, artist, track string) ([]SimilarTrack, error) {
	if !l.IsEnabled() {
		return nil, ErrNotFound
	}
	return cache.Fetch(ctx, l.cache, cache.Key("enrich.LastFM.Similar", artist, track), cache.TTLMeta,
		func(ctx context.Context) ([]SimilarTrack, error) {
			var out struct {
				SimilarTracks struct {
					Track []struct {
						Name   string `json:"name"`
						URL    string `json:"url"`
						Artist struct {
							Name string `json:"name"`
						} `json:"artist"`
					} `json:"track"`
				} `json:"similartracks"`
			}
			q := url.Values{}
			q.Set("method", "track.getsimilar")
			q.Set("artist", artist)
			q.Set("track", track)
			q.Set("api_key", l.token)
			q.Set("format", "json")
			if err := getJSON(ctx, l.client, l.baseURL+"/2.0/?"+q.Encode(), &out); err != nil {
				return nil, err
			}
			var tracks []SimilarTrack
			for _, t := range out.SimilarTracks.Track {
				if len(tracks) == MaxSimilar {
					break
				}
				tracks = append(tracks, SimilarTrack{Artist: t.Artist.Name, Name: t.Name, URL: t.URL})
			}
			if len(tracks) == 0 {
				return nil, ErrNotFound
			}
			return tracks, nil
		})
}

// SpotifyLink scrapes a last.fm track page for its Spotify link.
func (l *LastFM) SpotifyLink(ctx context.Context, pageURL string) (string, error) {
	return cache.Fetch(ctx, l.cache, cache.Key("enrich.LastFM.SpotifyLink", pageURL), cache.TTLMeta,
		func(ctx context.Context) (string, error) {
			resp, err := l.client.R().SetContext(ctx).Get(pageURL)
			if err != nil {
				return "", err
			}
			if resp.StatusCode() != http.StatusOK {
				return "", fmt.Errorf("last.fm returned status %d: %w", resp.StatusCode(), ErrNotFound)
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
			if err != nil {
				return "", fmt.Errorf("parse last.fm page: %w", err)
			}
			href, ok := doc.Find(`a[href^="https://open.spotify.com/track/"]`).First().Attr("href")
			if !ok {
				return "", ErrNotFound
			}
			return href, nil
		})
}

// SimilarSongs looks up songs similar to song on every platform. Tracks that
// cannot be resolved are left out; order follows last.fm.
func SimilarSongs(ctx context.Context, lf *LastFM, sl *SongLink, song *Song) ([]*Song, error) {
	tracks, err := lf.Similar(ctx, song.Artist, song.Title)
	if err != nil {
		return nil, err
	}

	found := make([]*Song, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tracks {
		g.Go(func() error {
			link, err := lf.SpotifyLink(gctx, t.URL)
			if err != nil {
				return nil
			}
			rec, err := sl.Lookup(gctx, link)
			if err != nil {
				return nil
			}
			found[i] = rec.Song
			return nil
		})
	}
	_ = g.Wait()

	var songs []*Song
	for _, s := range found {
		if s != nil {
			songs = append(songs, s)
		}
	}
	return songs, nil
}
