package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// MaxMediaSize is the largest file attached to a reply.
const MaxMediaSize = 8 << 20

// Instagram looks up posts through a private media API.
type Instagram struct {
	client    *resty.Client
	media     *resty.Client
	baseURL   string
	sessionID string
	enabled   bool
	cache     cache.Store
	log       logrus.FieldLogger
}

type instagramMedia struct {
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	LikeCount      *int64 `json:"like_count"`
	CommentCount   *int64 `json:"comment_count"`
	PlayCount      *int64 `json:"play_count"`
	VideoURL       string `json:"video_url"`
	ImageVersions2 struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
}

// NewInstagram creates the provider. It is disabled without credentials.
func NewInstagram(baseURL, user, password, sessionID string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Instagram {
	if store == nil {
		store = cache.Nop{}
	}
	return &Instagram{
		client: resty.New().
			SetTimeout(timeout).
			SetBasicAuth(user, password).
			SetHeader("User-Agent", "Keto - stkc.win"),
		media:     newClient(timeout),
		baseURL:   trimBase(baseURL),
		sessionID: sessionID,
		enabled:   user != "" && password != "",
		cache:     store,
		log:       logger.WithField("component", "instagram"),
	}
}

func (i *Instagram) GetName() string { return "instagram" }

func (i *Instagram) IsEnabled() bool { return i.enabled }

// Lookup returns a record for a post or reel. The media itself is attached
// when it fits under MaxMediaSize.
func (i *Instagram) Lookup(ctx context.Context, link string) (*Record, error) {
	if !i.enabled {
		return nil, ErrNotFound
	}
	info, err := cache.Fetch(ctx, i.cache, cache.Key("enrich.Instagram", link), cache.TTLCounts,
		func(ctx context.Context) (*instagramMedia, error) {
			return i.info(ctx, link)
		})
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Kind:      KindPhoto,
		URL:       link,
		SourceURL: link,
		Counts: Counts{
			Likes:    info.LikeCount,
			Comments: info.CommentCount,
		},
	}
	if info.PlayCount != nil && *info.PlayCount > 0 {
		rec.Counts.Views = info.PlayCount
	}
	if u := info.User.Username; u != "" && u != "Unknown" {
		rec.Author = u
		rec.AuthorURL = "https://instagram.com/" + u
	}

	mediaURL, name, ctype := "", "instagram_photo.jpg", "image/jpeg"
	if info.VideoURL != "" {
		rec.Kind = KindVideo
		mediaURL, name, ctype = info.VideoURL, "instagram_video.mp4", "video/mp4"
	} else if c := info.ImageVersions2.Candidates; len(c) > 0 {
		mediaURL = c[0].URL
	}
	if mediaURL != "" {
		rec.MediaURLs = []string{mediaURL}
		if data, err := i.download(ctx, mediaURL); err != nil {
			i.log.WithError(err).Debug("Not attaching media")
		} else {
			rec.Media = &Media{Name: name, ContentType: ctype, Data: data}
		}
	}
	return rec, nil
}

func (i *Instagram) info(ctx context.Context, link string) (*instagramMedia, error) {
	resp, err := i.client.R().
		SetContext(ctx).
		Get(i.baseURL + "/media/pk_from_url?url=" + url.QueryEscape(link))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("pk_from_url returned status %d: %w", resp.StatusCode(), ErrNotFound)
	}
	pk := strings.Trim(strings.TrimSpace(resp.String()), `"`)
	if pk == "" {
		return nil, ErrNotFound
	}

	resp, err = i.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"sessionid": i.sessionID,
			"pk":        pk,
			"use_cache": "true",
		}).
		Post(i.baseURL + "/media/info")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("media/info returned status %d: %w", resp.StatusCode(), ErrNotFound)
	}
	var info instagramMedia
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("decode media info: %w", err)
	}
	return &info, nil
}

func (i *Instagram) download(ctx context.Context, u string) ([]byte, error) {
	resp, err := i.media.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("media status %d", resp.StatusCode())
	}
	if len(resp.Body()) > MaxMediaSize {
		return nil, fmt.Errorf("media is %d bytes", len(resp.Body()))
	}
	return resp.Body(), nil
}
