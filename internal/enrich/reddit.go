package enrich

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// RedditAccent is the accent used when a post has no usable image.
const RedditAccent = 0xEC6333

// GridComposer builds one image out of several.
type GridComposer interface {
	ComposeGrid(ctx context.Context, urls []string) ([]byte, error)
}

// Reddit reads posts through the public .json listing.
type Reddit struct {
	client   *resty.Client
	composer GridComposer
	cache    cache.Store
	log      logrus.FieldLogger
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditThing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	ID            string `json:"id"`
	Subreddit     string `json:"subreddit"`
	Title         string `json:"title"`
	Selftext      string `json:"selftext"`
	Body          string `json:"body"`
	Author        string `json:"author"`
	Domain        string `json:"domain"`
	Dest          string `json:"url_overridden_by_dest"`
	Thumbnail     string `json:"thumbnail"`
	Over18        bool   `json:"over_18"`
	IsVideo       bool   `json:"is_video"`
	Ups           int64  `json:"ups"`
	NumComments   int64  `json:"num_comments"`
	MediaMetadata map[string]struct {
		S struct {
			U string `json:"u"`
		} `json:"s"`
	} `json:"media_metadata"`
	GalleryData struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
}

// replyLink matches a permalink that targets a single reply.
var replyLink = regexp.MustCompile(`/comments/\w+/[^/]+/([a-z0-9]{6,7})/?$`)

var unescaper = strings.NewReplacer("&gt;", ">", "&lt;", "<", "&amp;", "&", "&#x200B;", "")

// NewReddit creates the provider. composer may be nil, in which case
// galleries show their first image only.
func NewReddit(timeout time.Duration, composer GridComposer, store cache.Store, logger logrus.FieldLogger) *Reddit {
	if store == nil {
		store = cache.Nop{}
	}
	return &Reddit{
		client:   newClient(timeout),
		composer: composer,
		cache:    store,
		log:      logger.WithField("component", "reddit"),
	}
}

func (r *Reddit) GetName() string { return "reddit" }

func (r *Reddit) IsEnabled() bool { return true }

func jsonURL(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	return strings.TrimSuffix(link, "/") + ".json"
}

func (r *Reddit) listing(ctx context.Context, link string) ([]redditListing, error) {
	return cache.Fetch(ctx, r.cache, cache.Key("enrich.Reddit.listing", link), cache.TTLCounts,
		func(ctx context.Context) ([]redditListing, error) {
			var out []redditListing
			if err := getJSON(ctx, r.client, jsonURL(link), &out); err != nil {
				return nil, err
			}
			if len(out) == 0 || len(out[0].Data.Children) == 0 {
				return nil, ErrNotFound
			}
			return out, nil
		})
}

// NSFW reports whether the post behind link is marked over 18.
func (r *Reddit) NSFW(ctx context.Context, link string) (bool, error) {
	return cache.Fetch(ctx, r.cache, cache.Key("enrich.Reddit.NSFW", link), cache.TTLStatic,
		func(ctx context.Context) (bool, error) {
			l, err := r.listing(ctx, link)
			if err != nil {
				return false, err
			}
			return l[0].Data.Children[0].Data.Over18, nil
		})
}

// Lookup returns a post record. Video posts come back Minimal so the
// caller can point at a mirror that plays them.
func (r *Reddit) Lookup(ctx context.Context, link string) (*Record, error) {
	l, err := r.listing(ctx, link)
	if err != nil {
		return nil, err
	}
	p := l[0].Data.Children[0].Data

	if r.isVideo(p) {
		return &Record{Kind: KindLink, SourceURL: link, NSFW: p.Over18, Minimal: true}, nil
	}

	post := &Post{
		ID:        p.ID,
		Subreddit: p.Subreddit,
		Selftext:  unescaper.Replace(p.Selftext),
		Upvotes:   p.Ups,
		Comments:  p.NumComments,
		Image:     imageURL(p.Dest),
		Thumbnail: imageURL(p.Thumbnail),
	}
	if d := strings.ToLower(p.Domain); d != "" && !strings.Contains(d, "self."+strings.ToLower(p.Subreddit)) &&
		!strings.Contains(d, "reddit.com") && !strings.Contains(d, "redd.it") {
		post.Domain = p.Domain
	}

	rec := &Record{
		Kind:        KindPost,
		URL:         "https://redd.it/" + p.ID,
		SourceURL:   link,
		Title:       unescaper.Replace(p.Title),
		Description: post.Selftext,
		Author:      p.Author,
		NSFW:        p.Over18,
		Accent:      RedditAccent,
		Post:        post,
	}

	if gallery := galleryURLs(p); len(gallery) > 0 {
		rec.MediaURLs = gallery
		rec.AccentSourceURL = gallery[0]
		post.Image = gallery[0]
		if r.composer != nil && len(gallery) > 1 {
			grid, err := r.composer.ComposeGrid(ctx, gallery)
			if err != nil {
				r.log.WithError(err).Debug("Gallery grid failed")
			}
			post.Grid = grid
		}
	} else if post.Image != "" {
		rec.MediaURLs = []string{post.Image}
		rec.AccentSourceURL = post.Image
	} else if post.Thumbnail != "" {
		rec.AccentSourceURL = post.Thumbnail
	}

	if replyLink.MatchString(strings.TrimSuffix(strings.SplitN(link, "?", 2)[0], ".json")) &&
		len(l) > 1 && len(l[1].Data.Children) > 0 {
		c := l[1].Data.Children[0].Data
		if c.Body != "" {
			post.Reply = &Reply{Author: c.Author, Body: unescaper.Replace(c.Body)}
		}
	}
	return rec, nil
}

func (r *Reddit) isVideo(p redditThing) bool {
	if p.IsVideo {
		return true
	}
	d := strings.ToLower(p.Dest)
	return strings.Contains(d, "v.redd.it") || strings.HasSuffix(d, ".mp4") || strings.HasSuffix(d, ".webm")
}

// imageURL keeps u only when it points at a still image.
func imageURL(u string) string {
	path := strings.ToLower(strings.SplitN(u, "?", 2)[0])
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif"} {
		if strings.HasSuffix(path, ext) {
			return u
		}
	}
	return ""
}

func galleryURLs(p redditThing) []string {
	if len(p.MediaMetadata) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p.MediaMetadata))
	for _, it := range p.GalleryData.Items {
		if _, ok := p.MediaMetadata[it.MediaID]; ok {
			ids = append(ids, it.MediaID)
		}
	}
	if len(ids) == 0 {
		for id := range p.MediaMetadata {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	var urls []string
	for _, id := range ids {
		u := p.MediaMetadata[id].S.U
		if u == "" {
			continue
		}
		u = unescaper.Replace(u)
		u = strings.Replace(u, "preview.redd.it", "i.redd.it", 1)
		urls = append(urls, strings.SplitN(u, "?", 2)[0])
	}
	return urls
}
