// Package resolver turns shared links into canonical links and flags links
// that carry a marker identifying the person who shared them.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// ErrUnavailable means the link points at content that cannot be fixed,
// such as a live broadcast. Callers stop without replying.
var ErrUnavailable = errors.New("link target unavailable")

var unavailableSuffixes = []string{"/live"}

// ResolvedLink is a link after redirect resolution and tracking checks.
type ResolvedLink struct {
	CanonicalURL     string
	TrackingDetected bool
	TrackingReason   string
}

// Tracker detects a platform-specific tracking marker on a link.
type Tracker interface {
	Detect(ctx context.Context, link string) bool
	Reason() string
}

// Stripper is implemented by trackers that can remove their marker from a
// link without a network round trip.
type Stripper interface {
	Strip(link string) string
}

// Policy selects the resolution steps for one platform.
type Policy struct {
	// Follow looks up a single redirect hop before anything else.
	Follow bool
	// Tracker is optional.
	Tracker Tracker
	// Warn reports whether the author wants tracking warnings.
	Warn bool
}

// Resolver resolves links. It is safe for concurrent use.
type Resolver struct {
	client *resty.Client
	cache  cache.Store
	log    logrus.FieldLogger
}

// New creates a Resolver whose requests time out after timeout.
func New(timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Resolver {
	if store == nil {
		store = cache.Nop{}
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	return &Resolver{
		client: client,
		cache:  store,
		log:    logger.WithField("component", "resolver"),
	}
}

// Resolve runs the steps selected by p on link.
func (r *Resolver) Resolve(ctx context.Context, link string, p Policy) (ResolvedLink, error) {
	canonical := link
	if p.Follow {
		canonical = r.Redirect(ctx, link)
	}
	if Unavailable(canonical) {
		return ResolvedLink{}, ErrUnavailable
	}

	res := ResolvedLink{CanonicalURL: canonical}
	if p.Tracker == nil {
		return res, nil
	}
	detected := p.Tracker.Detect(ctx, link)
	if s, ok := p.Tracker.(Stripper); ok {
		res.CanonicalURL = s.Strip(res.CanonicalURL)
	}
	if detected && p.Warn {
		res.TrackingDetected = true
		res.TrackingReason = p.Tracker.Reason()
	}
	return res, nil
}

// Redirect issues one GET without following redirects. On a 301 the
// Location target is returned with its query removed. Any failure returns
// link unchanged.
func (r *Resolver) Redirect(ctx context.Context, link string) string {
	target, err := cache.Fetch(ctx, r.cache, cache.Key("resolver.Redirect", link), cache.TTLStatic,
		func(ctx context.Context) (string, error) {
			return r.lookup(ctx, link)
		})
	if err != nil {
		r.log.WithError(err).WithField("url", link).Debug("Redirect lookup failed")
		return link
	}
	return target
}

func (r *Resolver) lookup(ctx context.Context, link string) (string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgent).
		Get(link)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusMovedPermanently {
		return link, nil
	}
	loc := resp.Header().Get("Location")
	if loc == "" {
		return link, nil
	}
	if base, err := url.Parse(link); err == nil {
		if ref, err := url.Parse(loc); err == nil {
			loc = base.ResolveReference(ref).String()
		}
	}
	stripped, ok := StripQuery(loc)
	if !ok {
		return link, nil
	}
	return stripped, nil
}

// StripQuery truncates u at the first '?'. It reports false when u has no
// query.
func StripQuery(u string) (string, bool) {
	i := strings.IndexByte(u, '?')
	if i < 0 {
		return u, false
	}
	return u[:i], true
}

// Unavailable reports whether u ends in a suffix that marks content which
// cannot be previewed.
func Unavailable(u string) bool {
	for _, s := range unavailableSuffixes {
		if strings.HasSuffix(u, s) {
			return true
		}
	}
	return false
}

const userAgent = "linkfix (+https://github.com/ld3z/fixembed-go)"
