package origin

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// DefaultMaxBody caps a fetched page.
const DefaultMaxBody = 10 << 20 // 10MB

// ErrTooLarge is returned when a page exceeds the body cap.
var ErrTooLarge = xerrors.New("origin response too large")

// hop-by-hop headers, never forwarded in either direction
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Response is a fully buffered origin response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client fetches pages from the renderer.
type Client struct {
	base    *url.URL
	http    *http.Client
	maxBody int64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// NewClient targets base, e.g. http://127.0.0.1:3000.
func NewClient(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse origin url %q", base)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, xerrors.Newf("origin url %q must be absolute", base)
	}
	c := &Client{
		base: u,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// the renderer's redirects are passed through to the visitor
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		maxBody: DefaultMaxBody,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Fetch replays the incoming request's path, query and relevant headers
// against the renderer and buffers the answer.
func (c *Client) Fetch(ctx context.Context, in *http.Request) (*Response, error) {
	target := *c.base
	target.Path = singleJoiningSlash(c.base.Path, in.URL.Path)
	target.RawQuery = in.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, in.Method, target.String(), nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "build origin request")
	}
	copyHeaders(req.Header, in.Header)
	removeHopHeaders(req.Header)
	// compressed bodies would be cached per encoding; the edge compresses
	req.Header.Del("Accept-Encoding")
	req.Header.Set("X-Forwarded-Host", in.Host)
	if ip, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		req.Header.Set("X-Forwarded-For", ip)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, xerrors.Wrapf(err, "fetch %s", in.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", in.URL.Path)
	}
	if int64(len(body)) > c.maxBody {
		return nil, ErrTooLarge
	}

	h := resp.Header.Clone()
	removeHopHeaders(h)
	return &Response{Status: resp.StatusCode, Header: h, Body: body}, nil
}

// Ping checks that the renderer answers at all; any HTTP status counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Wrap(err, "origin unreachable")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
