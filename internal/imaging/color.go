package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"linkfix/internal/cache"
)

// DefaultColor is used when no accent colour can be computed.
const DefaultColor = 0x505050

// Palette finds the dominant colour of remote images.
type Palette struct {
	client *resty.Client
	cache  cache.Store
	log    logrus.FieldLogger
}

// NewPalette creates a Palette. Results are cached for a week.
func NewPalette(timeout time.Duration, store cache.Store, logger logrus.FieldLogger) *Palette {
	if store == nil {
		store = cache.Nop{}
	}
	return &Palette{
		client: resty.New().SetTimeout(timeout),
		cache:  store,
		log:    logger.WithField("component", "palette"),
	}
}

// DominantColor returns the dominant colour of the image at u as 0xRRGGBB,
// or DefaultColor on any failure.
func (p *Palette) DominantColor(ctx context.Context, u string) int {
	if u == "" {
		return DefaultColor
	}
	u = shrinkAvatar(u)
	c, err := cache.Fetch(ctx, p.cache, cache.Key("imaging.DominantColor", u), cache.TTLStatic,
		func(ctx context.Context) (int, error) {
			resp, err := p.client.R().SetContext(ctx).Get(u)
			if err != nil {
				return 0, err
			}
			if resp.StatusCode() != http.StatusOK {
				return 0, fmt.Errorf("status %d", resp.StatusCode())
			}
			img, _, err := image.Decode(bytes.NewReader(resp.Body()))
			if err != nil {
				return 0, err
			}
			return colorOf(img)
		})
	if err != nil {
		p.log.WithError(err).WithField("url", u).Debug("Falling back to default colour")
		return DefaultColor
	}
	return c
}

func colorOf(img image.Image) (int, error) {
	items, err := prominentcolor.KmeansWithArgs(prominentcolor.ArgumentNoCropping, img)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("no colours found")
	}
	c := items[0].Color
	return int(c.R<<16 | c.G<<8 | c.B), nil
}

// shrinkAvatar asks the Discord CDN for the smallest avatar rendition,
// which is plenty for colour sampling.
func shrinkAvatar(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || !strings.HasSuffix(parsed.Host, "discordapp.com") {
		return u
	}
	q := parsed.Query()
	if !q.Has("size") {
		return u
	}
	q.Set("size", "16")
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
