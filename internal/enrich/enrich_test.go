package enrich

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkfix/internal/cache"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func memoryStore(t *testing.T) cache.Store {
	t.Helper()
	s, err := cache.NewBadgerStore("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestQuickVids_Lookup(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/quickvids/shorturl", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://vm.tiktok.com/ABC123", body["input_text"])

		_, _ = io.WriteString(w, `{
			"quickvids_url": "https://qvs.win/abc",
			"details": {
				"author": {"username": "someuser", "link": "https://tiktok.com/@someuser"},
				"post": {"description": "a video", "counts": {"likes": 1500, "comments": 32, "views": 2000000}}
			}
		}`)
	})

	q := NewQuickVids(srv.URL, "tok", time.Second, nil, testLogger())
	rec, err := q.Lookup(context.Background(), "https://vm.tiktok.com/ABC123")
	require.NoError(t, err)

	assert.Equal(t, KindVideo, rec.Kind)
	assert.Equal(t, "https://qvs.win/abc", rec.URL)
	assert.Equal(t, "someuser", rec.Author)
	assert.Equal(t, "a video", rec.Description)
	require.NotNil(t, rec.Counts.Likes)
	assert.Equal(t, int64(1500), *rec.Counts.Likes)
	assert.Equal(t, int64(32), *rec.Counts.Comments)
	assert.Equal(t, int64(2000000), *rec.Counts.Views)
}

type ttlStore struct {
	cache.Nop
	ttls map[string]time.Duration
}

func (s *ttlStore) Set(_ context.Context, key string, _ []byte, ttl time.Duration) error {
	s.ttls[key] = ttl
	return nil
}

func TestQuickVids_CachesWithCountsTTL(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"quickvids_url": "https://qvs.win/abc", "details": {"post": {"counts": {"likes": 1}}}}`)
	})
	store := &ttlStore{ttls: map[string]time.Duration{}}

	_, err := NewQuickVids(srv.URL, "tok", time.Second, store, testLogger()).Lookup(context.Background(), "https://vm.tiktok.com/ABC123")
	require.NoError(t, err)
	require.Len(t, store.ttls, 1)
	for _, ttl := range store.ttls {
		assert.Equal(t, cache.TTLCounts, ttl)
	}
}

func TestQuickVids_Failures(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := NewQuickVids(srv.URL, "", time.Second, nil, testLogger()).Lookup(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound, "disabled without a token")

	_, err = NewQuickVids(srv.URL, "tok", time.Second, nil, testLogger()).Lookup(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInstagram_Lookup(t *testing.T) {
	var srv *httptest.Server
	srv = serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/pk_from_url":
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "user", user)
			assert.Equal(t, "pass", pass)
			_, _ = io.WriteString(w, `"12345"`)
		case "/media/info":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "12345", r.PostForm.Get("pk"))
			assert.Equal(t, "sess", r.PostForm.Get("sessionid"))
			writeJSON(w, map[string]any{
				"user":          map[string]any{"username": "cat"},
				"like_count":    10,
				"comment_count": 2,
				"play_count":    0,
				"video_url":     srv.URL + "/video.mp4",
			})
		case "/video.mp4":
			_, _ = io.WriteString(w, "data")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ig := NewInstagram(srv.URL, "user", "pass", "sess", time.Second, nil, testLogger())
	rec, err := ig.Lookup(context.Background(), "https://www.instagram.com/reel/C1a2B3c4/")
	require.NoError(t, err)

	assert.Equal(t, KindVideo, rec.Kind)
	assert.Equal(t, "cat", rec.Author)
	assert.Equal(t, "https://instagram.com/cat", rec.AuthorURL)
	assert.Equal(t, int64(10), *rec.Counts.Likes)
	assert.Equal(t, int64(2), *rec.Counts.Comments)
	assert.Nil(t, rec.Counts.Views, "zero plays are not shown")
	require.NotNil(t, rec.Media)
	assert.Equal(t, "instagram_video.mp4", rec.Media.Name)
	assert.Equal(t, []byte("data"), rec.Media.Data)
}

func TestInstagram_Disabled(t *testing.T) {
	ig := NewInstagram("http://127.0.0.1:1", "", "", "", time.Second, nil, testLogger())
	assert.False(t, ig.IsEnabled())
	_, err := ig.Lookup(context.Background(), "https://instagram.com/p/x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenGraph_Lookup(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head>
			<meta property="og:title" content="A title">
			<meta property="og:description" content="Some words">
			<meta property="og:image" content="https://img.example/a.jpg">
		</head><body></body></html>`)
	})

	rec, err := NewOpenGraph(time.Second).Lookup(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "A title", rec.Title)
	assert.Equal(t, "Some words", rec.Description)
	assert.Equal(t, []string{"https://img.example/a.jpg"}, rec.MediaURLs)
}

func TestSummarizer_CachesAndGuards(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		hits.Add(1)
		started <- struct{}{}
		<-release
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"A cat falls over."}}]}`)
	})

	s := NewSummarizer(srv.URL, "tok", time.Second, memoryStore(t), testLogger())
	ctx := context.Background()

	done := make(chan string)
	go func() {
		out, err := s.Summarize(ctx, "https://vm.tiktok.com/A", "cat video")
		assert.NoError(t, err)
		done <- out
	}()

	<-started
	_, err := s.Summarize(ctx, "https://vm.tiktok.com/A", "cat video")
	assert.ErrorIs(t, err, ErrSummaryPending)
	close(release)
	assert.Equal(t, "A cat falls over.", <-done)

	out, err := s.Summarize(ctx, "https://vm.tiktok.com/A", "cat video")
	require.NoError(t, err)
	assert.Equal(t, "A cat falls over.", out)
	assert.Equal(t, int32(1), hits.Load())
}
