package enrich

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// Cinemeta serves movie and series metadata keyed by IMDb id.
type Cinemeta struct {
	client  *resty.Client
	baseURL string
	liveURL string
	cache   cache.Store
	log     logrus.FieldLogger
}

type cinemetaMeta struct {
	ID          string   `json:"id"`
	MovieDBID   any      `json:"moviedb_id"`
	Name        string   `json:"name"`
	ReleaseInfo string   `json:"releaseInfo"`
	Description string   `json:"description"`
	Poster      string   `json:"poster"`
	Genres      []string `json:"genres"`
	Runtime     string   `json:"runtime"`
	Trailers    []struct {
		Source string `json:"source"`
	} `json:"trailers"`
}

// NewCinemeta creates the provider. baseURL serves search, liveURL serves
// metadata.
func NewCinemeta(baseURL, liveURL string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Cinemeta {
	if store == nil {
		store = cache.Nop{}
	}
	return &Cinemeta{
		client:  newClient(timeout),
		baseURL: trimBase(baseURL),
		liveURL: trimBase(liveURL),
		cache:   store,
		log:     logger.WithField("component", "cinemeta"),
	}
}

func (c *Cinemeta) GetName() string { return "cinemeta" }

func (c *Cinemeta) IsEnabled() bool { return true }

func metaType(series bool) string {
	if series {
		return "series"
	}
	return "movie"
}

// Search returns the IMDb id of the best match for query.
func (c *Cinemeta) Search(ctx context.Context, series bool, query string) (string, error) {
	return cache.Fetch(ctx, c.cache, cache.Key("enrich.Cinemeta.Search", series, query), cache.TTLMeta,
		func(ctx context.Context) (string, error) {
			var out struct {
				Metas []struct {
					ID string `json:"id"`
				} `json:"metas"`
			}
			u := c.baseURL + "/catalog/" + metaType(series) + "/top/search=" + url.PathEscape(query) + ".json"
			if err := getJSON(ctx, c.client, u, &out); err != nil {
				return "", err
			}
			if len(out.Metas) == 0 || out.Metas[0].ID == "" {
				return "", ErrNotFound
			}
			return out.Metas[0].ID, nil
		})
}

// Meta returns a movie or series record.
func (c *Cinemeta) Meta(ctx context.Context, series bool, imdbID string) (*Record, error) {
	m, err := cache.Fetch(ctx, c.cache, cache.Key("enrich.Cinemeta.Meta", series, imdbID), cache.TTLMeta,
		func(ctx context.Context) (*cinemetaMeta, error) {
			var out struct {
				Meta *cinemetaMeta `json:"meta"`
			}
			u := c.liveURL + "/meta/" + metaType(series) + "/" + url.PathEscape(imdbID) + ".json"
			if err := getJSON(ctx, c.client, u, &out); err != nil {
				return nil, err
			}
			if out.Meta == nil || (out.Meta.ID == "" && out.Meta.Name == "") {
				return nil, ErrNotFound
			}
			return out.Meta, nil
		})
	if err != nil {
		return nil, err
	}
	return m.record(imdbID, series), nil
}

// Lookup tries the id as a movie first, then as a series.
func (c *Cinemeta) Lookup(ctx context.Context, imdbID string) (*Record, error) {
	rec, err := c.Meta(ctx, false, imdbID)
	if errors.Is(err, ErrNotFound) {
		return c.Meta(ctx, true, imdbID)
	}
	return rec, err
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func (m *cinemetaMeta) record(imdbID string, series bool) *Record {
	mv := &Movie{
		IMDbID:  imdbID,
		TMDBID:  anyID(m.MovieDBID),
		Series:  series,
		Year:    orUnknown(m.ReleaseInfo),
		Genres:  m.Genres,
		Runtime: m.Runtime,
		Poster:  m.Poster,
	}
	for _, t := range m.Trailers {
		if t.Source != "" {
			mv.Trailers = append(mv.Trailers, "https://youtu.be/"+t.Source)
		}
	}
	return &Record{
		Kind:            KindMovie,
		URL:             "https://www.imdb.com/title/" + imdbID,
		Title:           orUnknown(m.Name),
		Description:     orUnknown(m.Description),
		AccentSourceURL: m.Poster,
		Movie:           mv,
	}
}

// anyID renders a JSON id that may arrive as a number or a string.
func anyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return formatInt(int64(id))
	}
	return ""
}
