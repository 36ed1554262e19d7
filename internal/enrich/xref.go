package enrich

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// maxPageBytes bounds how much of a scraped page is searched.
const maxPageBytes = 1 << 20

var imdbTitle = regexp.MustCompile(`imdb\.com/title/(tt\d{7,10})`)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// TMDB maps TMDB ids onto IMDb ids.
type TMDB struct {
	client  *resty.Client
	baseURL string
	token   string
	cache   cache.Store
}

// NewTMDB creates the provider. It is disabled without an API key.
func NewTMDB(baseURL, token string, timeout time.Duration, store cache.Store) *TMDB {
	if store == nil {
		store = cache.Nop{}
	}
	return &TMDB{client: newClient(timeout), baseURL: trimBase(baseURL), token: token, cache: store}
}

func (t *TMDB) GetName() string { return "tmdb" }

func (t *TMDB) IsEnabled() bool { return t.token != "" }

// IMDbID resolves a TMDB id of the given kind ("movie" or "tv").
func (t *TMDB) IMDbID(ctx context.Context, kind, id string) (string, error) {
	if !t.IsEnabled() {
		return "", ErrNotFound
	}
	return cache.Fetch(ctx, t.cache, cache.Key("enrich.TMDB.IMDbID", kind, id), cache.TTLMeta,
		func(ctx context.Context) (string, error) {
			var out struct {
				IMDbID string `json:"imdb_id"`
			}
			u := fmt.Sprintf("%s/3/%s/%s/external_ids?api_key=%s", t.baseURL, kind, id, t.token)
			if err := getJSON(ctx, t.client, u, &out); err != nil {
				return "", err
			}
			if out.IMDbID == "" {
				return "", ErrNotFound
			}
			return out.IMDbID, nil
		})
}

// Trakt finds the IMDb id linked from a trakt.tv page.
type Trakt struct {
	client *resty.Client
	cache  cache.Store
}

// NewTrakt creates the provider.
func NewTrakt(timeout time.Duration, store cache.Store) *Trakt {
	if store == nil {
		store = cache.Nop{}
	}
	return &Trakt{client: newClient(timeout), cache: store}
}

func (t *Trakt) GetName() string { return "trakt" }

func (t *Trakt) IsEnabled() bool { return true }

// IMDbID scrapes the page at link.
func (t *Trakt) IMDbID(ctx context.Context, link string) (string, error) {
	return cache.Fetch(ctx, t.cache, cache.Key("enrich.Trakt.IMDbID", link), cache.TTLMeta,
		func(ctx context.Context) (string, error) {
			resp, err := t.client.R().SetContext(ctx).Get(link)
			if err != nil {
				return "", err
			}
			if resp.StatusCode() != http.StatusOK {
				return "", fmt.Errorf("trakt returned status %d: %w", resp.StatusCode(), ErrNotFound)
			}
			body := resp.Body()
			if len(body) > maxPageBytes {
				body = body[:maxPageBytes]
			}
			if id := imdbFromHTML(string(body)); id != "" {
				return id, nil
			}
			return "", ErrNotFound
		})
}

// imdbFromHTML prefers an anchor to IMDb and falls back to any mention of
// a title URL in the raw page.
func imdbFromHTML(page string) string {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page)); err == nil {
		var id string
		doc.Find(`a[href*="imdb.com/title/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if m := imdbTitle.FindStringSubmatch(href); m != nil {
				id = m[1]
				return false
			}
			return true
		})
		if id != "" {
			return id
		}
	}
	if m := imdbTitle.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return ""
}

// Recommendation is a related movie.
type Recommendation struct {
	Title  string `json:"title"`
	TMDBID string `json:"tmdb_id"`
}

// Radarr returns movie recommendations.
type Radarr struct {
	client  *resty.Client
	baseURL string
	cache   cache.Store
	log     logrus.FieldLogger
}

// NewRadarr creates the provider.
func NewRadarr(baseURL string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Radarr {
	if store == nil {
		store = cache.Nop{}
	}
	return &Radarr{
		client:  newClient(timeout),
		baseURL: trimBase(baseURL),
		cache:   store,
		log:     logger.WithField("component", "radarr"),
	}
}

func (r *Radarr) GetName() string { return "radarr" }

func (r *Radarr) IsEnabled() bool { return true }

// Recommendations lists movies related to the IMDb id. Entries without a
// TMDB id are skipped.
func (r *Radarr) Recommendations(ctx context.Context, imdbID string) ([]Recommendation, error) {
	return cache.Fetch(ctx, r.cache, cache.Key("enrich.Radarr.Recommendations", imdbID), cache.TTLMeta,
		func(ctx context.Context) ([]Recommendation, error) {
			var out []struct {
				Recommendations []struct {
					Title  string `json:"Title"`
					TmdbID int64  `json:"TmdbId"`
				} `json:"Recommendations"`
			}
			if err := getJSON(ctx, r.client, r.baseURL+"/v1/movie/imdb/"+imdbID, &out); err != nil {
				return nil, err
			}
			if len(out) == 0 {
				return nil, ErrNotFound
			}
			var recs []Recommendation
			for _, m := range out[0].Recommendations {
				if m.TmdbID == 0 || m.Title == "" {
					continue
				}
				recs = append(recs, Recommendation{Title: m.Title, TMDBID: formatInt(m.TmdbID)})
			}
			if len(recs) == 0 {
				return nil, ErrNotFound
			}
			return recs, nil
		})
}
