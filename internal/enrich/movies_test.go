package enrich

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCinemeta_SeriesFallback(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/meta/series/tt0903747.json":
			_, _ = io.WriteString(w, `{"meta": {
				"id": "tt0903747",
				"moviedb_id": 1396,
				"name": "Breaking Bad",
				"releaseInfo": "2008-2013",
				"poster": "https://images.example/bb.jpg",
				"genres": ["Drama", "Crime"],
				"runtime": "49 min",
				"trailers": [{"source": "abc"}, {"source": ""}, {"source": "def"}]
			}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	c := NewCinemeta(srv.URL, srv.URL, time.Second, nil, testLogger())
	rec, err := c.Lookup(context.Background(), "tt0903747")
	require.NoError(t, err)

	assert.Equal(t, KindMovie, rec.Kind)
	assert.Equal(t, "Breaking Bad", rec.Title)
	assert.Equal(t, "Unknown", rec.Description)
	assert.Equal(t, "https://www.imdb.com/title/tt0903747", rec.URL)
	assert.Equal(t, "https://images.example/bb.jpg", rec.AccentSourceURL)
	require.NotNil(t, rec.Movie)
	assert.True(t, rec.Movie.Series)
	assert.Equal(t, "1396", rec.Movie.TMDBID)
	assert.Equal(t, "2008-2013", rec.Movie.Year)
	assert.Equal(t, []string{"Drama", "Crime"}, rec.Movie.Genres)
	assert.Equal(t, []string{"https://youtu.be/abc", "https://youtu.be/def"}, rec.Movie.Trailers)
}

func TestCinemeta_NotFound(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"meta": {}}`)
	})
	c := NewCinemeta(srv.URL, srv.URL, time.Second, nil, testLogger())
	_, err := c.Lookup(context.Background(), "tt0000001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCinemeta_Search(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog/movie/top/search=fight club.json":
			_, _ = io.WriteString(w, `{"metas": [{"id": "tt0137523"}, {"id": "tt9999999"}]}`)
		default:
			_, _ = io.WriteString(w, `{"metas": []}`)
		}
	})
	c := NewCinemeta(srv.URL, srv.URL, time.Second, nil, testLogger())

	id, err := c.Search(context.Background(), false, "fight club")
	require.NoError(t, err)
	assert.Equal(t, "tt0137523", id)

	_, err = c.Search(context.Background(), true, "fight club")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTMDB_IMDbID(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/movie/550/external_ids", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		_, _ = io.WriteString(w, `{"imdb_id": "tt0137523"}`)
	})

	id, err := NewTMDB(srv.URL, "key", time.Second, nil).IMDbID(context.Background(), "movie", "550")
	require.NoError(t, err)
	assert.Equal(t, "tt0137523", id)

	_, err = NewTMDB(srv.URL, "", time.Second, nil).IMDbID(context.Background(), "movie", "550")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrakt_IMDbID(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"anchor", `<html><body><a href="https://www.imdb.com/title/tt0903747/">IMDB</a></body></html>`, "tt0903747"},
		{"raw text", `<html><script>var l = "https://imdb.com/title/tt1234567";</script></html>`, "tt1234567"},
		{"missing", `<html><body>nothing</body></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.page)
			})
			id, err := NewTrakt(time.Second, nil).IMDbID(context.Background(), srv.URL+"/shows/breaking-bad")
			if tt.want == "" {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestRadarr_Recommendations(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/movie/imdb/tt0137523", r.URL.Path)
		_, _ = io.WriteString(w, `[{"Recommendations": [
			{"Title": "Se7en", "TmdbId": 807},
			{"Title": "", "TmdbId": 1},
			{"Title": "Zero", "TmdbId": 0}
		]}]`)
	})

	recs, err := NewRadarr(srv.URL, time.Second, nil, testLogger()).Recommendations(context.Background(), "tt0137523")
	require.NoError(t, err)
	assert.Equal(t, []Recommendation{{Title: "Se7en", TMDBID: "807"}}, recs)
}
