// Package upstream fetches the monitored account's posts.
// Requests go through a Transport, which may route them via a scraping proxy,
// and are normalised into entity.Post by the Mastodon API or RSS fetcher.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxBodySize caps upstream response bodies.
const maxBodySize = 10 << 20

// Response is an upstream answer after any proxy envelope has been removed.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs a GET against target, possibly through an intermediary.
// A non-2xx upstream status is not an error at this level.
type Transport interface {
	Get(ctx context.Context, target string, header http.Header) (*Response, error)
	Name() string
}

// DirectTransport talks to the upstream itself, optionally via an HTTP proxy.
type DirectTransport struct {
	client *http.Client
}

// NewDirectTransport creates a transport with the given per-request timeout.
// proxyURL may be empty.
func NewDirectTransport(timeout time.Duration, proxyURL string) (*DirectTransport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", proxyURL)
		}
		base.Proxy = http.ProxyURL(u)
	}
	return &DirectTransport{client: &http.Client{Timeout: timeout, Transport: base}}, nil
}

func (t *DirectTransport) Name() string { return "direct" }

func (t *DirectTransport) Get(ctx context.Context, target string, header http.Header) (*Response, error) {
	return doGet(ctx, t.client, target, header)
}

// ScrapeOpsEndpoint is the ScrapeOps proxy API.
const ScrapeOpsEndpoint = "https://proxy.scrapeops.io/v1/"

// ScrapeOpsTransport wraps each target URL in a ScrapeOps proxy request.
type ScrapeOpsTransport struct {
	client   *http.Client
	endpoint string
	apiKey   string
	country  string
}

func NewScrapeOpsTransport(timeout time.Duration, endpoint, apiKey, country string) *ScrapeOpsTransport {
	if endpoint == "" {
		endpoint = ScrapeOpsEndpoint
	}
	return &ScrapeOpsTransport{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
		country:  country,
	}
}

func (t *ScrapeOpsTransport) Name() string { return "scrapeops" }

// ProxyURL returns the ScrapeOps request URL for target.
func (t *ScrapeOpsTransport) ProxyURL(target string) string {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("url", target)
	if t.country != "" {
		q.Set("country", t.country)
	}
	sep := "?"
	if strings.Contains(t.endpoint, "?") {
		sep = "&"
	}
	return t.endpoint + sep + q.Encode()
}

func (t *ScrapeOpsTransport) Get(ctx context.Context, target string, header http.Header) (*Response, error) {
	return doGet(ctx, t.client, t.ProxyURL(target), header)
}

// FlareSolverrTransport asks a FlareSolverr instance to fetch the target in a
// real browser, which gets past Cloudflare challenges.
type FlareSolverrTransport struct {
	client     *http.Client
	endpoint   string
	maxTimeout time.Duration
}

// NewFlareSolverrTransport creates a transport for the FlareSolverr at host:port.
// The HTTP client timeout leaves headroom over the browser timeout.
func NewFlareSolverrTransport(host string, port int, timeout time.Duration) *FlareSolverrTransport {
	const browserTimeout = 25 * time.Second
	if timeout < browserTimeout+5*time.Second {
		timeout = browserTimeout + 5*time.Second
	}
	return &FlareSolverrTransport{
		client:     &http.Client{Timeout: timeout},
		endpoint:   fmt.Sprintf("http://%s:%d/v1", host, port),
		maxTimeout: browserTimeout,
	}
}

func (t *FlareSolverrTransport) Name() string { return "flaresolverr" }

type flareRequest struct {
	Cmd        string            `json:"cmd"`
	URL        string            `json:"url"`
	MaxTimeout int64             `json:"maxTimeout"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type flareResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		Status   int    `json:"status"`
		Response string `json:"response"`
	} `json:"solution"`
}

func (t *FlareSolverrTransport) Get(ctx context.Context, target string, header http.Header) (*Response, error) {
	payload := flareRequest{
		Cmd:        "request.get",
		URL:        target,
		MaxTimeout: t.maxTimeout.Milliseconds(),
	}
	if len(header) > 0 {
		payload.Headers = make(map[string]string, len(header))
		for k := range header {
			payload.Headers[k] = header.Get(k)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal flaresolverr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create flaresolverr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, requestError("flaresolverr", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, requestError("flaresolverr", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// FlareSolverr itself failing is a proxy problem, not an upstream refusal
		return nil, &FetchError{Kind: KindTransport, Op: "flaresolverr", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("flaresolverr: %s", snippet(raw))}
	}

	var fr flareResponse
	if err := json.Unmarshal(raw, &fr); err != nil {
		return nil, malformed("flaresolverr", fmt.Errorf("decode envelope: %w", err))
	}
	if fr.Status != "ok" {
		return nil, &FetchError{Kind: KindTransport, Op: "flaresolverr",
			Err: fmt.Errorf("flaresolverr status %q: %s", fr.Status, fr.Message)}
	}

	status := fr.Solution.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{StatusCode: status, Body: unwrapBrowserBody(fr.Solution.Response)}, nil
}

// unwrapBrowserBody returns the JSON a browser rendered inside <pre>, or the
// response unchanged when it is not an HTML page.
func unwrapBrowserBody(s string) []byte {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed[0] == '{' || trimmed[0] == '[' || !strings.HasPrefix(trimmed, "<") {
		return []byte(trimmed)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return []byte(trimmed)
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return []byte(trimmed)
	}
	return []byte(strings.TrimSpace(pre.Text()))
}

func doGet(ctx context.Context, client *http.Client, target string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, malformed("request", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, requestError("request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, requestError("read body", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// errEmptyBody is returned when a 2xx response carries nothing to decode.
var errEmptyBody = errors.New("empty response body")
