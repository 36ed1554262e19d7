package fixer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linkfix/internal/config"
	"linkfix/internal/enrich"
	"linkfix/internal/registry"
	"linkfix/internal/render"
	"linkfix/internal/resolver"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeSender struct {
	mu         sync.Mutex
	replies    []*render.Payload
	suppressed []string
	edits      []string
	deleted    []string
	replyErr   error
}

func (f *fakeSender) Reply(_ context.Context, _, _ string, p *render.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.replies = append(f.replies, p)
	return "reply-1", nil
}

func (f *fakeSender) Suppress(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = append(f.suppressed, messageID)
	return nil
}

func (f *fakeSender) EditContent(_ context.Context, _, _, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, content)
	return nil
}

func (f *fakeSender) Delete(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

type fakeSettings struct {
	disabled map[string]bool
}

func (f fakeSettings) Enabled(_ context.Context, _, platform string) bool {
	return !f.disabled[platform]
}

func (f fakeSettings) TrackingWarnings(context.Context, string, string) bool { return true }

type fakeCounter struct {
	mu    sync.Mutex
	fixes []string
}

func (f *fakeCounter) Increment(platform string) {
	f.mu.Lock()
	f.fixes = append(f.fixes, platform)
	f.mu.Unlock()
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

type fakeResolver struct {
	link     resolver.ResolvedLink
	err      error
	policies []resolver.Policy
}

func (f *fakeResolver) Resolve(_ context.Context, link string, p resolver.Policy) (resolver.ResolvedLink, error) {
	f.policies = append(f.policies, p)
	if f.err != nil {
		return resolver.ResolvedLink{}, f.err
	}
	if f.link.CanonicalURL == "" {
		return resolver.ResolvedLink{CanonicalURL: link}, nil
	}
	return f.link, nil
}

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Resolve(ctx context.Context, req Request) (resolver.ResolvedLink, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(resolver.ResolvedLink), args.Error(1)
}

func (m *mockHandler) Enrich(ctx context.Context, req Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	args := m.Called(ctx, req, link)
	rec, _ := args.Get(0).(*enrich.Record)
	return rec, args.Error(1)
}

func (m *mockHandler) Minimal(req Request, link resolver.ResolvedLink) *enrich.Record {
	return m.Called(req, link).Get(0).(*enrich.Record)
}

func testConfig() config.Config {
	return config.Config{
		SuppressDelay: 750 * time.Millisecond,
		WarningWindow: 20 * time.Second,
		Platforms: map[string]config.PlatformConfig{
			"tiktok":    {Enabled: true, URL: "tnktok.com"},
			"instagram": {Enabled: true, URL: "ddinstagram.com", BlockTracking: true},
			"reddit":    {Enabled: true, URL: "rxddit.com", BuildEmbeds: true},
			"twitter":   {Enabled: true, URL: "fxtwitter.com"},
			"bluesky":   {Enabled: true, URL: "fxbsky.app"},
		},
	}
}

type harness struct {
	orch    *Orchestrator
	sender  *fakeSender
	counter *fakeCounter
	sleeps  *sleepRecorder
}

func newHarness(handlers map[registry.Platform]Handler, settings Settings) *harness {
	h := &harness{sender: &fakeSender{}, counter: &fakeCounter{}, sleeps: &sleepRecorder{}}
	h.orch = New(Options{
		Registry: registry.Default(),
		Handlers: handlers,
		Renderer: render.NewBuilder(nil, nil, false, testLogger()),
		Settings: settings,
		Counter:  h.counter,
		Sender:   h.sender,
		Sleep:    h.sleeps.sleep,
		Config:   testConfig(),
		Logger:   testLogger(),
	})
	return h
}

func message(id, content string) Message {
	return Message{ID: id, ChannelID: "c1", GuildID: "g1", AuthorID: "u1", Content: content}
}

func labels(p *render.Payload) []string {
	var out []string
	for _, b := range p.Buttons {
		out = append(out, b.Label)
	}
	return out
}

func TestHandleMessage_TikTok(t *testing.T) {
	quickvids := LookupFunc(func(_ context.Context, link string) (*enrich.Record, error) {
		assert.Equal(t, "https://www.tiktok.com/@someuser/video/123", link)
		return &enrich.Record{
			Kind:      enrich.KindVideo,
			URL:       "https://qvs.win/abc",
			Author:    "someuser",
			AuthorURL: "https://www.tiktok.com/@someuser",
			Counts: enrich.Counts{
				Likes:    enrich.Int64(1500),
				Comments: enrich.Int64(32),
				Views:    enrich.Int64(2000000),
			},
		}, nil
	})
	res := &fakeResolver{link: resolver.ResolvedLink{CanonicalURL: "https://www.tiktok.com/@someuser/video/123"}}
	h := newHarness(map[registry.Platform]Handler{
		registry.TikTok: NewTikTok(res, nil, quickvids, nil, false),
	}, fakeSettings{})

	out := h.orch.HandleMessage(context.Background(), message("m1", "check this out https://vm.tiktok.com/ABC123"))

	assert.Equal(t, Suppressed, out.State)
	assert.Equal(t, "tiktok", out.Platform)
	require.Len(t, h.sender.replies, 1)
	p := h.sender.replies[0]
	assert.Equal(t, "https://qvs.win/abc", p.Content)
	assert.Equal(t, []string{"1.5k", "32", "2.0M", "@someuser"}, labels(p))
	assert.Equal(t, []string{"m1"}, h.sender.suppressed)
	assert.Equal(t, []time.Duration{750 * time.Millisecond}, h.sleeps.waits)
	assert.Equal(t, []string{"tiktok"}, h.counter.fixes)
	assert.Empty(t, h.sender.edits)
	require.Len(t, res.policies, 1)
	assert.True(t, res.policies[0].Follow)
}

func TestHandleMessage_DisabledSkipsEnrichment(t *testing.T) {
	mh := &mockHandler{}
	h := newHarness(map[registry.Platform]Handler{registry.TikTok: mh},
		fakeSettings{disabled: map[string]bool{"tiktok": true}})

	out := h.orch.HandleMessage(context.Background(), message("m1", "https://vm.tiktok.com/ABC123"))

	assert.Equal(t, Ignored, out.State)
	assert.Empty(t, h.sender.replies)
	mh.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	mh.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_Ignored(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no link", "nothing to see here"},
		{"preview suppressed", "look <https://x.com/user/status/1>"},
		{"suppressed with query", "look <https://x.com/user/status/1?s=20>"},
		{"suppressed with path", "look <https://x.com/user/status/1/photo/1>"},
		{"suppressed tiktok", "<https://www.tiktok.com/@u/video/123?is_from_webapp=1>"},
		{"unsupported link", "https://example.com/video/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(map[registry.Platform]Handler{
				registry.Twitter: NewRewrite("x.com", "twitter.com"),
				registry.TikTok:  NewRewrite("tiktok.com"),
			}, fakeSettings{})
			out := h.orch.HandleMessage(context.Background(), message("m1", tt.content))
			assert.Equal(t, Ignored, out.State)
			assert.Empty(t, h.sender.replies)
			assert.Empty(t, h.sender.suppressed)
		})
	}
}

func TestWrapped(t *testing.T) {
	const raw = "https://x.com/user/status/1"
	tests := []struct {
		content string
		want    bool
	}{
		{"<https://x.com/user/status/1>", true},
		{"see <https://x.com/user/status/1?s=20> ok", true},
		{"https://x.com/user/status/1", false},
		{"<https://x.com/user/status/1 and then>", false},
		{"https://x.com/user/status/1>", false},
		{"<https://x.com/user/status/1", false},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			assert.Equal(t, tt.want, wrapped(tt.content, raw))
		})
	}
}

func TestHandleMessage_NeverReprocesses(t *testing.T) {
	h := newHarness(map[registry.Platform]Handler{
		registry.Twitter: NewRewrite("x.com", "twitter.com"),
	}, fakeSettings{})
	msg := message("m1", "https://x.com/user/status/1")

	first := h.orch.HandleMessage(context.Background(), msg)
	second := h.orch.HandleMessage(context.Background(), msg)

	assert.Equal(t, Suppressed, first.State)
	assert.Equal(t, Ignored, second.State)
	assert.Len(t, h.sender.replies, 1)
	assert.Len(t, h.sender.suppressed, 1)
}

func TestHandleMessage_PatternPriority(t *testing.T) {
	h := newHarness(map[registry.Platform]Handler{
		registry.Twitter: NewRewrite("x.com", "twitter.com"),
		registry.Bluesky: NewRewrite("bsky.app"),
	}, fakeSettings{})

	out := h.orch.HandleMessage(context.Background(),
		message("m1", "https://bsky.app/profile/a.bsky.social/post/3k and https://x.com/user/status/1"))

	assert.Equal(t, "twitter", out.Platform)
	require.Len(t, h.sender.replies, 1)
	assert.Equal(t, "https://fxtwitter.com/user/status/1", h.sender.replies[0].Content)
}

func TestHandleMessage_SpoilerInference(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"spoilered", "||https://x.com/user/status/1||", "||https://fxtwitter.com/user/status/1||"},
		{"stray delimiter", "||https://x.com/user/status/1", "https://fxtwitter.com/user/status/1"},
		{"plain", "https://x.com/user/status/1", "https://fxtwitter.com/user/status/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(map[registry.Platform]Handler{
				registry.Twitter: NewRewrite("x.com", "twitter.com"),
			}, fakeSettings{})
			h.orch.HandleMessage(context.Background(), message("m1", tt.content))
			require.Len(t, h.sender.replies, 1)
			assert.Equal(t, tt.want, h.sender.replies[0].Content)
		})
	}
}

func TestHandleMessage_TrackingWarningIsEditedAway(t *testing.T) {
	res := &fakeResolver{link: resolver.ResolvedLink{
		CanonicalURL:     "https://www.tiktok.com/@someuser/video/123",
		TrackingDetected: true,
		TrackingReason:   "Tracked.",
	}}
	noData := LookupFunc(func(context.Context, string) (*enrich.Record, error) { return nil, enrich.ErrNotFound })
	h := newHarness(map[registry.Platform]Handler{
		registry.TikTok: NewTikTok(res, nil, noData, nil, false),
	}, fakeSettings{})

	h.orch.HandleMessage(context.Background(), message("m1", "https://vm.tiktok.com/ABC123"))

	require.Len(t, h.sender.replies, 1)
	p := h.sender.replies[0]
	assert.Equal(t, "https://tnktok.com/@someuser/video/123", p.Content)
	assert.Contains(t, p.Text(), "\n-# Tracked. [Learn more.](<"+render.LearnMoreURL+">)")
	assert.Equal(t, []string{"https://tnktok.com/@someuser/video/123"}, h.sender.edits)
	assert.Equal(t, []time.Duration{750 * time.Millisecond, 20 * time.Second}, h.sleeps.waits)
}

func TestHandleMessage_PanicDegradesToMinimal(t *testing.T) {
	link := resolver.ResolvedLink{CanonicalURL: "https://vm.tiktok.com/ABC123"}
	mh := &mockHandler{}
	mh.On("Resolve", mock.Anything, mock.Anything).Return(link, nil)
	mh.On("Enrich", mock.Anything, mock.Anything, link).Run(func(mock.Arguments) { panic("boom") })
	mh.On("Minimal", mock.Anything, link).Return(minimal("https://vm.tnktok.com/ABC123"))
	h := newHarness(map[registry.Platform]Handler{registry.TikTok: mh}, fakeSettings{})

	out := h.orch.HandleMessage(context.Background(), message("m1", "https://vm.tiktok.com/ABC123"))

	assert.Equal(t, Suppressed, out.State)
	require.Len(t, h.sender.replies, 1)
	assert.Equal(t, "https://vm.tnktok.com/ABC123", h.sender.replies[0].Content)
	mh.AssertExpectations(t)
}

func TestHandleMessage_Unavailable(t *testing.T) {
	res := &fakeResolver{err: resolver.ErrUnavailable}
	primary := LookupFunc(func(context.Context, string) (*enrich.Record, error) {
		t.Fatal("enrichment must not run")
		return nil, nil
	})
	h := newHarness(map[registry.Platform]Handler{
		registry.TikTok: NewTikTok(res, nil, primary, nil, false),
	}, fakeSettings{})

	out := h.orch.HandleMessage(context.Background(), message("m1", "https://vm.tiktok.com/ABC123"))

	assert.Equal(t, Ignored, out.State)
	assert.Empty(t, h.sender.replies)
}

type fakeReddit struct {
	rec  *enrich.Record
	nsfw bool
}

func (f fakeReddit) Lookup(context.Context, string) (*enrich.Record, error) { return f.rec, nil }

func (f fakeReddit) NSFW(context.Context, string) (bool, error) { return f.nsfw, nil }

func TestHandleMessage_GatedNoticeIsDeleted(t *testing.T) {
	src := fakeReddit{rec: &enrich.Record{
		Kind:  enrich.KindPost,
		URL:   "https://redd.it/abc",
		Title: "adult",
		NSFW:  true,
		Post:  &enrich.Post{ID: "abc", Subreddit: "sub"},
	}}
	h := newHarness(map[registry.Platform]Handler{
		registry.Reddit: NewReddit(&fakeResolver{}, src),
	}, fakeSettings{})

	out := h.orch.HandleMessage(context.Background(), message("m1", "https://www.reddit.com/r/sub/comments/abc/title/"))

	assert.Equal(t, Responded, out.State)
	require.Len(t, h.sender.replies, 1)
	assert.True(t, h.sender.replies[0].Gated)
	assert.Equal(t, []string{"reply-1"}, h.sender.deleted)
	assert.Empty(t, h.sender.suppressed)
	assert.Empty(t, h.counter.fixes)
	assert.Equal(t, []time.Duration{GatedLifetime}, h.sleeps.waits)
}

func TestHandleMessage_ReplyFailureIsQuiet(t *testing.T) {
	h := newHarness(map[registry.Platform]Handler{
		registry.Twitter: NewRewrite("x.com", "twitter.com"),
	}, fakeSettings{})
	h.sender.replyErr = errors.New("missing permissions")

	out := h.orch.HandleMessage(context.Background(), message("m1", "https://x.com/user/status/1"))

	assert.Equal(t, Enriched, out.State)
	assert.Empty(t, h.sender.suppressed)
	assert.Empty(t, h.counter.fixes)
}

func TestHandleMessage_SongsReplyPolicy(t *testing.T) {
	song := func(source string, links ...enrich.PlatformLink) *enrich.Record {
		return &enrich.Record{
			Kind:  enrich.KindSong,
			Title: "Artist - Title",
			Song:  &enrich.Song{Artist: "Artist", Title: "Title", Links: links, SourcePlatform: source},
		}
	}
	spotify := enrich.PlatformLink{Platform: enrich.Spotify, Name: "Spotify", URL: "https://open.spotify.com/track/1?autoplay=0"}
	youtube := enrich.PlatformLink{Platform: enrich.YouTube, Name: "YouTube", URL: "https://youtu.be/x"}

	tests := []struct {
		name       string
		content    string
		rec        *enrich.Record
		replied    bool
		suppressed bool
	}{
		{"spotify", "https://open.spotify.com/track/1", song(enrich.Spotify, spotify, youtube), true, true},
		{"youtube with match", "https://youtu.be/x", song(enrich.YouTube, spotify, youtube), true, false},
		{"youtube without match", "https://youtu.be/x", song(enrich.YouTube, youtube), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := LookupFunc(func(context.Context, string) (*enrich.Record, error) { return tt.rec, nil })
			h := newHarness(map[registry.Platform]Handler{registry.Songs: NewSongs(links)}, fakeSettings{})

			h.orch.HandleMessage(context.Background(), message("m1", tt.content))

			assert.Equal(t, tt.replied, len(h.sender.replies) == 1)
			assert.Equal(t, tt.suppressed, len(h.sender.suppressed) == 1)
		})
	}
}

func TestFixLink(t *testing.T) {
	handlers := map[registry.Platform]Handler{
		registry.Twitter: NewRewrite("x.com", "twitter.com"),
	}

	t.Run("fixes", func(t *testing.T) {
		h := newHarness(handlers, fakeSettings{})
		p, err := h.orch.FixLink(context.Background(), Command{GuildID: "g1", Link: "https://x.com/user/status/1", Spoiler: true})
		require.NoError(t, err)
		assert.Equal(t, "||https://fxtwitter.com/user/status/1||", p.Content)
		assert.Equal(t, []string{"twitter"}, h.counter.fixes)
		assert.Empty(t, h.sender.suppressed)
	})

	t.Run("no match", func(t *testing.T) {
		h := newHarness(handlers, fakeSettings{})
		_, err := h.orch.FixLink(context.Background(), Command{Link: "see https://x.com/user/status/1"})
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("restricted platform", func(t *testing.T) {
		h := newHarness(handlers, fakeSettings{})
		_, err := h.orch.FixLink(context.Background(), Command{Link: "https://x.com/user/status/1", Platform: registry.TikTok})
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(handlers, fakeSettings{disabled: map[string]bool{"twitter": true}})
		_, err := h.orch.FixLink(context.Background(), Command{GuildID: "g1", Link: "https://x.com/user/status/1"})
		assert.ErrorIs(t, err, ErrDisabled)
	})
}

func TestSetConfig(t *testing.T) {
	h := newHarness(map[registry.Platform]Handler{
		registry.Twitter: NewRewrite("x.com", "twitter.com"),
	}, fakeSettings{})
	cfg := testConfig()
	cfg.Platforms["twitter"] = config.PlatformConfig{Enabled: true, URL: "vxtwitter.com"}
	h.orch.SetConfig(cfg)

	p, err := h.orch.FixLink(context.Background(), Command{Link: "https://twitter.com/user/status/1"})
	require.NoError(t, err)
	assert.Equal(t, "https://vxtwitter.com/user/status/1", p.Content)
}

func TestSeenSet_Evicts(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("c"))
	assert.True(t, s.add("a"), "oldest entry was evicted")
}
