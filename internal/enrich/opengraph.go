package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/go-resty/resty/v2"
)

// OpenGraph reads Open Graph tags from a page. It is the fallback when a
// richer provider has no data.
type OpenGraph struct {
	client *resty.Client
}

// NewOpenGraph creates the provider.
func NewOpenGraph(timeout time.Duration) *OpenGraph {
	return &OpenGraph{client: newClient(timeout)}
}

// Lookup returns a record with the page's title, description and first
// image. URL is left to the caller.
func (o *OpenGraph) Lookup(ctx context.Context, pageURL string) (*Record, error) {
	resp, err := o.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("opengraph %s: status %d: %w", pageURL, resp.StatusCode(), ErrNotFound)
	}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(resp.Body())); err != nil {
		return nil, fmt.Errorf("parse opengraph: %w", err)
	}
	if og.Title == "" && og.Description == "" {
		return nil, ErrNotFound
	}

	rec := &Record{
		Kind:        KindLink,
		Title:       og.Title,
		Description: og.Description,
	}
	if len(og.Images) > 0 && og.Images[0].URL != "" {
		rec.MediaURLs = []string{og.Images[0].URL}
		rec.AccentSourceURL = og.Images[0].URL
	}
	return rec, nil
}
