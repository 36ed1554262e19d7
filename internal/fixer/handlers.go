package fixer

import (
	"context"
	"strings"

	"linkfix/internal/config"
	"linkfix/internal/enrich"
	"linkfix/internal/registry"
	"linkfix/internal/resolver"
)

// Request is one matched link on its way through a handler.
type Request struct {
	Match   registry.LinkMatch
	Config  config.PlatformConfig
	Spoiler bool
	// Warn is the author's tracking warning preference.
	Warn bool
}

// Handler supplies the platform specific steps of the pipeline.
type Handler interface {
	Resolve(ctx context.Context, req Request) (resolver.ResolvedLink, error)
	Enrich(ctx context.Context, req Request, link resolver.ResolvedLink) (*enrich.Record, error)
	// Minimal is the record used when enrichment is unavailable.
	Minimal(req Request, link resolver.ResolvedLink) *enrich.Record
}

// ReplyPolicy is implemented by handlers that only reply to, or only
// suppress, some records.
type ReplyPolicy interface {
	Replies(rec *enrich.Record) bool
	Suppresses(rec *enrich.Record) bool
}

func replies(h Handler, rec *enrich.Record) bool {
	if p, ok := h.(ReplyPolicy); ok {
		return p.Replies(rec)
	}
	return true
}

func suppresses(h Handler, rec *enrich.Record) bool {
	if p, ok := h.(ReplyPolicy); ok {
		return p.Suppresses(rec)
	}
	return true
}

// LinkResolver resolves links, usually a *resolver.Resolver.
type LinkResolver interface {
	Resolve(ctx context.Context, link string, p resolver.Policy) (resolver.ResolvedLink, error)
}

// Lookuper fetches a record for a link or ID.
type Lookuper interface {
	Lookup(ctx context.Context, key string) (*enrich.Record, error)
}

// LookupFunc adapts a function to Lookuper.
type LookupFunc func(ctx context.Context, key string) (*enrich.Record, error)

func (f LookupFunc) Lookup(ctx context.Context, key string) (*enrich.Record, error) {
	return f(ctx, key)
}

func minimal(u string) *enrich.Record {
	return &enrich.Record{Kind: enrich.KindLink, URL: u, SourceURL: u, Minimal: true}
}

// mirror swaps host for the configured replacement domain. An empty
// replacement leaves the link alone.
func mirror(u, host, replacement string) string {
	if replacement == "" {
		return u
	}
	u = strings.Replace(u, "www.", "", 1)
	return strings.Replace(u, host, replacement, 1)
}

// TikTok resolves short links, checks for a sharer marker and asks
// QuickVids for a short link with counts.
type TikTok struct {
	resolver  LinkResolver
	tracker   resolver.Tracker
	primary   Lookuper
	fallback  Lookuper
	summarize bool
}

// NewTikTok creates the handler. tracker and fallback may be nil.
// summarize enables the summary control on videos.
func NewTikTok(r LinkResolver, tracker resolver.Tracker, primary, fallback Lookuper, summarize bool) *TikTok {
	return &TikTok{resolver: r, tracker: tracker, primary: primary, fallback: fallback, summarize: summarize}
}

func (t *TikTok) Resolve(ctx context.Context, req Request) (resolver.ResolvedLink, error) {
	return t.resolver.Resolve(ctx, req.Match.RawURL, resolver.Policy{Follow: true, Tracker: t.tracker, Warn: req.Warn})
}

func (t *TikTok) Enrich(ctx context.Context, req Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	if req.Spoiler {
		return nil, enrich.ErrNotFound
	}
	rec, err := t.primary.Lookup(ctx, link.CanonicalURL)
	if err != nil && t.fallback != nil {
		mirrored := t.Minimal(req, link).URL
		if rec, err = t.fallback.Lookup(ctx, mirrored); err == nil {
			rec.URL, rec.SourceURL = mirrored, link.CanonicalURL
		}
	}
	if err != nil {
		return nil, err
	}
	rec.Summarizable = t.summarize && !strings.Contains(link.CanonicalURL, "/photo/")
	return rec, nil
}

func (t *TikTok) Minimal(req Request, link resolver.ResolvedLink) *enrich.Record {
	return minimal(mirror(link.CanonicalURL, "tiktok.com", req.Config.URL))
}

// Instagram strips the share marker and attaches the post media.
type Instagram struct {
	resolver LinkResolver
	media    Lookuper
}

// NewInstagram creates the handler.
func NewInstagram(r LinkResolver, media Lookuper) *Instagram {
	return &Instagram{resolver: r, media: media}
}

var igshTracker = resolver.QueryParam{Param: "igsh", Platform: "Instagram"}

func (i *Instagram) Resolve(ctx context.Context, req Request) (resolver.ResolvedLink, error) {
	p := resolver.Policy{Warn: req.Warn}
	if req.Config.BlockTracking {
		p.Tracker = igshTracker
	}
	return i.resolver.Resolve(ctx, req.Match.RawURL, p)
}

func (i *Instagram) Enrich(ctx context.Context, _ Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	return i.media.Lookup(ctx, link.CanonicalURL)
}

func (i *Instagram) Minimal(req Request, link resolver.ResolvedLink) *enrich.Record {
	u, _ := resolver.StripQuery(link.CanonicalURL)
	return minimal(strings.TrimSuffix(mirror(u, "instagram.com", req.Config.URL), "/"))
}

// RedditSource is the post lookup used by the Reddit handler.
type RedditSource interface {
	Lookup(ctx context.Context, link string) (*enrich.Record, error)
	NSFW(ctx context.Context, link string) (bool, error)
}

// Reddit builds post embeds, or points video posts at a mirror.
type Reddit struct {
	resolver LinkResolver
	source   RedditSource
}

// NewReddit creates the handler.
func NewReddit(r LinkResolver, source RedditSource) *Reddit {
	return &Reddit{resolver: r, source: source}
}

func (r *Reddit) Resolve(ctx context.Context, req Request) (resolver.ResolvedLink, error) {
	raw := req.Match.RawURL
	follow := strings.Contains(raw, "/s/") || strings.Contains(raw, "redd.it/")
	return r.resolver.Resolve(ctx, raw, resolver.Policy{Follow: follow})
}

func (r *Reddit) Enrich(ctx context.Context, req Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	if !req.Config.BuildEmbeds {
		rec := r.Minimal(req, link)
		nsfw, err := r.source.NSFW(ctx, link.CanonicalURL)
		if err != nil {
			return nil, err
		}
		rec.NSFW = nsfw
		return rec, nil
	}
	rec, err := r.source.Lookup(ctx, link.CanonicalURL)
	if err != nil {
		return nil, err
	}
	if rec.Minimal {
		rec.URL = r.Minimal(req, link).URL
	}
	return rec, nil
}

func (r *Reddit) Minimal(req Request, link resolver.ResolvedLink) *enrich.Record {
	u := strings.Replace(link.CanonicalURL, "old.reddit.com", "reddit.com", 1)
	u = strings.Replace(u, "new.reddit.com", "reddit.com", 1)
	return minimal(mirror(u, "reddit.com", req.Config.URL))
}

// Rewrite only swaps domains. It backs the twitter and bluesky platforms.
type Rewrite struct {
	hosts []string
}

// NewRewrite creates a handler that rewrites each of hosts, in order, to
// the next one and the last to the configured domain.
func NewRewrite(hosts ...string) *Rewrite {
	return &Rewrite{hosts: hosts}
}

func (r *Rewrite) Resolve(_ context.Context, req Request) (resolver.ResolvedLink, error) {
	return resolver.ResolvedLink{CanonicalURL: req.Match.RawURL}, nil
}

func (r *Rewrite) Enrich(_ context.Context, req Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	return r.Minimal(req, link), nil
}

func (r *Rewrite) Minimal(req Request, link resolver.ResolvedLink) *enrich.Record {
	u := strings.Replace(link.CanonicalURL, "www.", "", 1)
	for i, h := range r.hosts {
		next := req.Config.URL
		if i+1 < len(r.hosts) {
			next = r.hosts[i+1]
		}
		if next != "" {
			u = strings.Replace(u, h, next, 1)
		}
	}
	return minimal(u)
}

// IMDbSource maps TMDB and trakt links to IMDb IDs.
type IMDbSource interface {
	TMDB(ctx context.Context, kind, id string) (string, error)
	Trakt(ctx context.Context, link string) (string, error)
}

// MovieSources adapts the cross reference providers to IMDbSource.
type MovieSources struct {
	TMDBClient  *enrich.TMDB
	TraktClient *enrich.Trakt
}

func (s MovieSources) TMDB(ctx context.Context, kind, id string) (string, error) {
	return s.TMDBClient.IMDbID(ctx, kind, id)
}

func (s MovieSources) Trakt(ctx context.Context, link string) (string, error) {
	return s.TraktClient.IMDbID(ctx, link)
}

// Movies renders movie and series cards for IMDb, TMDB and trakt links.
type Movies struct {
	ids  IMDbSource
	meta Lookuper
}

// NewMovies creates the handler. meta looks records up by IMDb ID.
func NewMovies(ids IMDbSource, meta Lookuper) *Movies {
	return &Movies{ids: ids, meta: meta}
}

func (m *Movies) Resolve(_ context.Context, req Request) (resolver.ResolvedLink, error) {
	return resolver.ResolvedLink{CanonicalURL: req.Match.RawURL}, nil
}

func (m *Movies) Enrich(ctx context.Context, req Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	g := req.Match.Groups
	var (
		id  string
		err error
	)
	switch req.Match.Platform {
	case registry.IMDb:
		id = g[0]
	case registry.TMDB:
		id, err = m.ids.TMDB(ctx, g[0], g[1])
	case registry.Trakt:
		id, err = m.ids.Trakt(ctx, link.CanonicalURL)
	}
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, enrich.ErrNotFound
	}

	rec, err := m.meta.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.SourceURL = link.CanonicalURL
	if rec.Movie != nil {
		rec.Movie.FromIMDb = req.Match.Platform == registry.IMDb
	}
	return rec, nil
}

// Minimal is empty: the shared link already previews.
func (m *Movies) Minimal(Request, resolver.ResolvedLink) *enrich.Record {
	return minimal("")
}

// Songs links a track on every streaming platform.
type Songs struct {
	links Lookuper
}

// NewSongs creates the handler.
func NewSongs(links Lookuper) *Songs {
	return &Songs{links: links}
}

func (s *Songs) Resolve(_ context.Context, req Request) (resolver.ResolvedLink, error) {
	return resolver.ResolvedLink{CanonicalURL: req.Match.RawURL}, nil
}

func (s *Songs) Enrich(ctx context.Context, _ Request, link resolver.ResolvedLink) (*enrich.Record, error) {
	return s.links.Lookup(ctx, link.CanonicalURL)
}

func (s *Songs) Minimal(Request, resolver.ResolvedLink) *enrich.Record {
	return minimal("")
}

func (s *Songs) Replies(rec *enrich.Record) bool {
	return rec.Song != nil && rec.Song.Replyable()
}

func (s *Songs) Suppresses(rec *enrich.Record) bool {
	return rec.Song != nil && rec.Song.FromMusicService()
}

// Steam renders store cards.
type Steam struct {
	details Lookuper
}

// NewSteam creates the handler. details looks records up by app ID.
func NewSteam(details Lookuper) *Steam {
	return &Steam{details: details}
}

func (s *Steam) Resolve(_ context.Context, req Request) (resolver.ResolvedLink, error) {
	return resolver.ResolvedLink{CanonicalURL: req.Match.RawURL}, nil
}

func (s *Steam) Enrich(ctx context.Context, req Request, _ resolver.ResolvedLink) (*enrich.Record, error) {
	return s.details.Lookup(ctx, req.Match.Groups[0])
}

func (s *Steam) Minimal(Request, resolver.ResolvedLink) *enrich.Record {
	return minimal("")
}
