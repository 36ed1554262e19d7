package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxCount caps how many images one grid holds.
const DefaultMaxCount = 12

// Composer downloads images and composes them.
type Composer struct {
	client   *resty.Client
	maxCount int
	log      logrus.FieldLogger
}

// NewComposer creates a Composer whose downloads time out after timeout.
func NewComposer(timeout time.Duration, logger logrus.FieldLogger) *Composer {
	return &Composer{
		client:   resty.New().SetTimeout(timeout),
		maxCount: DefaultMaxCount,
		log:      logger.WithField("component", "imaging"),
	}
}

// Fetch downloads up to the composer's limit of urls concurrently. Images
// that fail to download or decode are dropped. Order is preserved.
func (c *Composer) Fetch(ctx context.Context, urls []string) []image.Image {
	if len(urls) > c.maxCount {
		urls = urls[:c.maxCount]
	}
	slots := make([]image.Image, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			img, err := c.fetchOne(ctx, u)
			if err != nil {
				c.log.WithError(err).WithField("url", u).Debug("Dropping grid image")
				return nil
			}
			slots[i] = img
			return nil
		})
	}
	_ = g.Wait()

	imgs := slots[:0]
	for _, img := range slots {
		if img != nil {
			imgs = append(imgs, img)
		}
	}
	return imgs
}

func (c *Composer) fetchOne(ctx context.Context, u string) (image.Image, error) {
	resp, err := c.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	img, _, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// ComposeGrid fetches urls and returns the grid as PNG bytes. It returns
// nil bytes and no error when no image could be fetched.
func (c *Composer) ComposeGrid(ctx context.Context, urls []string) ([]byte, error) {
	imgs := c.Fetch(ctx, urls)
	if len(imgs) == 0 {
		return nil, nil
	}
	return EncodePNG(Grid(imgs, MaxGridWidth))
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode grid: %w", err)
	}
	return buf.Bytes(), nil
}
