package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "linkfix (+https://github.com/ld3z/fixembed-go)"

func newClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)
}

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}

// getJSON issues a GET and decodes a 200 response into out. Any other
// status is reported as ErrNotFound.
func getJSON(ctx context.Context, client *resty.Client, u string, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(u)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: status %d: %w", u, resp.StatusCode(), ErrNotFound)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}
