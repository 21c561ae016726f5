// Package httprpc implements store.Executor over an HTTP JSON endpoint.
//
// Each method is a POST of the JSON request to
//
//	{endpoint}/datasets/{dataset}/{method}
//
// and the JSON response body is decoded into the caller's response value.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jacentio/canopy/wire"
)

// OAuth scopes requested for service-account credentials.
const (
	ScopeDatastore     = "https://www.googleapis.com/auth/datastore"
	ScopeUserinfoEmail = "https://www.googleapis.com/auth/userinfo.email"
)

var (
	// ErrInvalidConfig is returned when the endpoint, dataset or
	// credentials are missing or unusable.
	ErrInvalidConfig = errors.New("canopy/httprpc: invalid configuration")

	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("canopy/httprpc: unauthorized")

	// ErrRequest is returned when a request could not be sent or the
	// server answered with an error status.
	ErrRequest = errors.New("canopy/httprpc: request failed")

	// ErrBadResponse is returned when a response body cannot be read or
	// decoded.
	ErrBadResponse = errors.New("canopy/httprpc: bad response")
)

// StatusError is returned for error statuses other than 401 and 403.
type StatusError struct {
	Method     wire.Method
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("canopy/httprpc: %s: status %d: %s", e.Method, e.StatusCode, e.Body)
}

// Unwrap makes a StatusError match ErrRequest.
func (e *StatusError) Unwrap() error {
	return ErrRequest
}

// maxErrorBody bounds the response text kept in a StatusError.
const maxErrorBody = 512

// Executor sends wire methods to a remote endpoint.
type Executor struct {
	endpoint  string
	dataset   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sets the client used to send requests. The default client
// traces every request with otelhttp.
func WithHTTPClient(c *http.Client) Option {
	return func(x *Executor) {
		x.client = c
	}
}

// WithLogger sets the logger used for failed requests.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = logger
	}
}

// WithUserAgent identifies the calling application on every request.
func WithUserAgent(name, version string) Option {
	return func(x *Executor) {
		x.userAgent = name + "/" + version
	}
}

// New returns an Executor for dataset at endpoint.
func New(endpoint, dataset string, opts ...Option) (*Executor, error) {
	if endpoint == "" || dataset == "" {
		return nil, fmt.Errorf("%w: endpoint and dataset are required", ErrInvalidConfig)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("%w: endpoint: %v", ErrInvalidConfig, err)
	}

	x := &Executor{
		endpoint: strings.TrimRight(endpoint, "/"),
		dataset:  dataset,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// NewWithCredentials returns an Executor that authorizes requests with a
// service-account JSON key.
func NewWithCredentials(ctx context.Context, endpoint, dataset string, credentialsJSON []byte, opts ...Option) (*Executor, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, ScopeDatastore, ScopeUserinfoEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: credentials: %v", ErrInvalidConfig, err)
	}

	client := &http.Client{
		Transport: otelhttp.NewTransport(&oauth2.Transport{
			Source: conf.TokenSource(ctx),
			Base:   http.DefaultTransport,
		}),
	}

	return New(endpoint, dataset, append([]Option{WithHTTPClient(client)}, opts...)...)
}

// Execute posts request to the method's URL and decodes the reply into
// response.
func (x *Executor) Execute(ctx context.Context, method wire.Method, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %w", ErrRequest, method, err)
	}

	endpoint := x.endpoint + "/datasets/" + url.PathEscape(x.dataset) + "/" + string(method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if x.userAgent != "" {
		req.Header.Set("User-Agent", x.userAgent)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequest, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", ErrBadResponse, method, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status %d", ErrUnauthorized, method, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		x.logger.Warn("request failed",
			"method", string(method),
			"status", resp.StatusCode,
		)
		return &StatusError{Method: method, StatusCode: resp.StatusCode, Body: text}
	}

	if response == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBadResponse, method, err)
	}
	return nil
}
