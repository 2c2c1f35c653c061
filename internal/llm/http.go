package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// HTTPTransport posts Messages requests with net/http.
type HTTPTransport struct {
	client     *http.Client
	endpoint   string
	apiVersion string
	userAgent  string
	sessionErr error
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithAPIVersion overrides the anthropic-version header.
func WithAPIVersion(v string) HTTPOption {
	return func(t *HTTPTransport) {
		if v != "" {
			t.apiVersion = v
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// NewHTTPTransport creates a transport for baseURL (DefaultBaseURL when
// empty). An unusable baseURL surfaces on the first Post as a session
// failure.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	t := &HTTPTransport{
		client:     &http.Client{},
		apiVersion: DefaultAPIVersion,
		userAgent:  DefaultUserAgent,
	}
	u, err := url.Parse(baseURL)
	switch {
	case err != nil:
		t.sessionErr = err
	case u.Scheme == "" || u.Host == "":
		t.sessionErr = errors.New("base url must be absolute: " + baseURL)
	default:
		t.endpoint = strings.TrimRight(baseURL, "/") + MessagesPath
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Endpoint returns the full Messages URL.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

func (t *HTTPTransport) Post(ctx context.Context, apiKey string, body []byte) (*RawResponse, error) {
	if t.sessionErr != nil {
		return nil, stageError(StageSession, t.sessionErr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, stageError(StageRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", t.apiVersion)
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, stageError(StageConnect, err)
		}
		return nil, stageError(StageSend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stageError(StageReceive, err)
	}
	return &RawResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
