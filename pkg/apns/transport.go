package apns

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Gateway base URLs.
const (
	Development = "https://api.development.push.apple.com"
	Production  = "https://api.push.apple.com"
)

// maxResponseBody bounds how much of a gateway reply is read.
const maxResponseBody = 64 << 10

// Request is the single request shape sent to the gateway.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// Response is what the transport hands back for classification.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs one blocking request. A nil response with a nil error is
// recorded as a missing response.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport sends requests over HTTP/2 with a persistent connection.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds an HTTP/2 client. tlsConfig carries the client
// certificate in certificate mode and may be nil in token mode.
func NewHTTPTransport(tlsConfig *tls.Config, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http2.Transport{TLSClientConfig: tlsConfig},
			Timeout:   timeout,
		},
	}
}

// NewHTTPTransportWithClient wraps an already configured client.
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, r *Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = r.Header.Clone()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Close drops idle gateway connections.
func (t *HTTPTransport) Close() {
	t.client.CloseIdleConnections()
}
