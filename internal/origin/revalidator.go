package origin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

type revalidateRequest struct {
	Secret string `json:"secret"`
	Path   string `json:"path,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

type revalidateResponse struct {
	Revalidated bool   `json:"revalidated"`
	Error       string `json:"error,omitempty"`
}

// Revalidator forwards invalidations to the renderer so its own page cache
// is purged along with ours.
type Revalidator struct {
	url    string
	secret string
	http   *http.Client
}

// NewRevalidator posts to url. hc sets timeouts and TLS. Its transport is
// wrapped for tracing unless it already is, hc itself is not modified. nil
// means a 10s client.
func NewRevalidator(url, secret string, hc *http.Client) *Revalidator {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	c := *hc
	if _, ok := c.Transport.(*otelhttp.Transport); !ok {
		base := c.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.Transport = otelhttp.NewTransport(base)
	}
	return &Revalidator{url: url, secret: secret, http: &c}
}

func (r *Revalidator) InvalidatePath(ctx context.Context, path string) error {
	return r.post(ctx, revalidateRequest{Secret: r.secret, Path: path})
}

func (r *Revalidator) InvalidateTag(ctx context.Context, tag string) error {
	return r.post(ctx, revalidateRequest{Secret: r.secret, Tag: tag})
}

func (r *Revalidator) post(ctx context.Context, body revalidateRequest) error {
	b, err := json.Marshal(body)
	if err != nil {
		return xerrors.Wrap(err, "encode revalidate request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(b))
	if err != nil {
		return xerrors.Wrap(err, "build revalidate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return xerrors.Wrap(err, "upstream revalidate")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return xerrors.Newf("upstream revalidate: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out revalidateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return xerrors.Wrap(err, "decode upstream revalidate response")
	}
	if !out.Revalidated {
		if out.Error == "" {
			out.Error = "not revalidated"
		}
		return xerrors.Newf("upstream revalidate: %s", out.Error)
	}
	return nil
}
