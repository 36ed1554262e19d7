package resolver

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

func trackingReason(platform string) string {
	return fmt.Sprintf("The link in your original message includes a tracking ID that may expose your %s account.", platform)
}

// WhoShared asks a who-shared lookup service whether a short video link
// resolves to the account that shared it.
type WhoShared struct {
	client  *resty.Client
	baseURL string
	cache   cache.Store
	log     logrus.FieldLogger
}

// NewWhoShared creates a tracker backed by the service at baseURL.
func NewWhoShared(baseURL string, timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *WhoShared {
	if store == nil {
		store = cache.Nop{}
	}
	return &WhoShared{
		client:  resty.New().SetTimeout(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   store,
		log:     logger.WithField("component", "who-shared"),
	}
}

// Reason implements Tracker.
func (w *WhoShared) Reason() string { return trackingReason("TikTok") }

// Detect implements Tracker. Lookup failures count as no marker.
func (w *WhoShared) Detect(ctx context.Context, link string) bool {
	found, err := cache.Fetch(ctx, w.cache, cache.Key("resolver.WhoShared", link), cache.TTLStatic,
		func(ctx context.Context) (bool, error) {
			resp, err := w.client.R().
				SetContext(ctx).
				SetQueryParam("url", link).
				Get(w.baseURL + "/api/parse")
			if err != nil {
				return false, err
			}
			if resp.StatusCode() != http.StatusOK {
				return false, nil
			}
			var body struct {
				UniqueID string `json:"uniqueId"`
			}
			if err := json.Unmarshal(resp.Body(), &body); err != nil {
				return false, err
			}
			return body.UniqueID != "", nil
		})
	if err != nil {
		w.log.WithError(err).Debug("Tracking lookup failed")
		return false
	}
	return found
}

// QueryParam flags and removes one tracking query parameter, such as
// Instagram's igsh.
type QueryParam struct {
	Param    string
	Platform string
}

// Reason implements Tracker.
func (q QueryParam) Reason() string { return trackingReason(q.Platform) }

// Detect implements Tracker.
func (q QueryParam) Detect(_ context.Context, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Query().Has(q.Param)
}

// Strip implements Stripper. Other query parameters are kept.
func (q QueryParam) Strip(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	values := u.Query()
	if !values.Has(q.Param) {
		return link
	}
	values.Del(q.Param)
	u.RawQuery = values.Encode()
	return u.String()
}
