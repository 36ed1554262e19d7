package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// QuickVids shortens short-video links and returns engagement counts.
type QuickVids struct {
	client  *resty.Client
	baseURL string
	token   string
	cache   cache.Store
	log     logrus.FieldLogger
}

type quickVidsResponse struct {
	QuickVidsURL string `json:"quickvids_url"`
	Details      struct {
		Author struct {
			Username string `json:"username"`
			Link     string `json:"link"`
		} `json:"author"`
		Post struct {
			Description string `json:"description"`
			Counts      struct {
				Likes    *int64 `json:"likes"`
				Comments *int64 `json:"comments"`
				Views    *int64 `json:"views"`
			} `json:"counts"`
		} `json:"post"`
	} `json:"details"`
}

// NewQuickVids creates the provider. It is disabled without a token.
func NewQuickVids(baseURL, token string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *QuickVids {
	if store == nil {
		store = cache.Nop{}
	}
	return &QuickVids{
		client:  newClient(timeout),
		baseURL: trimBase(baseURL),
		token:   token,
		cache:   store,
		log:     logger.WithField("component", "quickvids"),
	}
}

func (q *QuickVids) GetName() string { return "quickvids" }

func (q *QuickVids) IsEnabled() bool { return q.token != "" }

// Lookup returns a video record for link. The record carries engagement
// counts, so it is kept only as long as other counters.
func (q *QuickVids) Lookup(ctx context.Context, link string) (*Record, error) {
	if !q.IsEnabled() {
		return nil, ErrNotFound
	}
	return cache.Fetch(ctx, q.cache, cache.Key("enrich.QuickVids", link), cache.TTLCounts,
		func(ctx context.Context) (*Record, error) {
			return q.lookup(ctx, link)
		})
}

func (q *QuickVids) lookup(ctx context.Context, link string) (*Record, error) {
	resp, err := q.client.R().
		SetContext(ctx).
		SetAuthToken(q.token).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"input_text": link, "detailed": true}).
		Post(q.baseURL + "/v2/quickvids/shorturl")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("quickvids returned status %d: %w", resp.StatusCode(), ErrNotFound)
	}

	var body quickVidsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode quickvids: %w", err)
	}
	if body.QuickVidsURL == "" {
		return nil, ErrNotFound
	}

	d := body.Details
	return &Record{
		Kind:        KindVideo,
		URL:         body.QuickVidsURL,
		SourceURL:   link,
		Author:      d.Author.Username,
		AuthorURL:   d.Author.Link,
		Description: d.Post.Description,
		Counts: Counts{
			Likes:    d.Post.Counts.Likes,
			Comments: d.Post.Counts.Comments,
			Views:    d.Post.Counts.Views,
		},
	}, nil
}
