package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const maxErrorBody = 512

// HTTPSource reads http and https URLs, resuming with Range requests.
type HTTPSource struct {
	client *http.Client
}

// NewHTTPSource builds a traced client. A non-empty token is sent as a bearer token.
func NewHTTPSource(token string) *HTTPSource {
	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)

	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		}
	}

	return &HTTPSource{client: &http.Client{Transport: transport}}
}

// NewHTTPSourceWithClient uses client as is.
func NewHTTPSourceWithClient(client *http.Client) *HTTPSource {
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Open(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, Range, error) {
	resp, err := s.get(ctx, rawURL, offset)
	if err != nil {
		return nil, Range{}, err
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
		resp.Body.Close()

		// The partial file already holds the whole object.
		if total := totalFromContentRange(resp.Header.Get("Content-Range")); total == offset {
			return http.NoBody, Range{Offset: offset, Total: total}, nil
		}

		// The partial file is larger than the object; start over.
		return s.Open(ctx, rawURL, 0)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, Range{Offset: 0, Total: resp.ContentLength}, nil
	case http.StatusPartialContent:
		total := totalFromContentRange(resp.Header.Get("Content-Range"))
		if total < 0 && resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}

		return resp.Body, Range{Offset: offset, Total: total}, nil
	}

	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, Range{}, &asset.AuthenticationError{
			Operation: "get",
			Err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg),
		}
	}

	return nil, Range{}, &asset.NetworkError{Operation: "get", StatusCode: resp.StatusCode, APIMessage: msg}
}

func (s *HTTPSource) get(ctx context.Context, rawURL string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &asset.SourceError{URL: rawURL, Reason: err.Error()}
	}

	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &asset.NetworkError{Operation: "get", APIMessage: err.Error(), Err: err}
	}

	return resp, nil
}

// totalFromContentRange parses "bytes 100-199/200" and returns 200, or -1.
func totalFromContentRange(v string) int64 {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return -1
	}

	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return -1
	}

	return n
}
