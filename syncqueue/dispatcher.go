package syncqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/goliatone/go-barangay-registry/internal/logging"
	"github.com/goliatone/go-barangay-registry/internal/metrics"
)

// Dispatcher delivers one item to the backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, item Item) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, item Item) error

func (f DispatcherFunc) Dispatch(ctx context.Context, item Item) error {
	return f(ctx, item)
}

// Route is the HTTP endpoint for an item.
type Route struct {
	Method string
	Path   string
}

// RouteFor maps an item to its REST endpoint.
func RouteFor(item Item) (Route, error) {
	key := url.PathEscape(item.ResourceKey)

	switch item.Type {
	case TypeResident:
		switch item.Action {
		case ActionCreate:
			return Route{http.MethodPost, "/api/residents"}, nil
		case ActionUpdate:
			return Route{http.MethodPut, "/api/residents/" + key}, nil
		case ActionDelete:
			return Route{http.MethodDelete, "/api/residents/" + key}, nil
		}
	case TypeHousehold:
		switch item.Action {
		case ActionCreate:
			return Route{http.MethodPost, "/api/households"}, nil
		case ActionUpdate:
			return Route{http.MethodPut, "/api/households/" + key}, nil
		case ActionDelete:
			return Route{http.MethodDelete, "/api/households/" + key}, nil
		}
	case TypeUser:
		switch item.Action {
		case ActionCreate:
			return Route{http.MethodPost, "/api/auth/create-profile"}, nil
		case ActionUpdate:
			return Route{http.MethodPut, "/api/auth/profile"}, nil
		case ActionDelete:
			return Route{http.MethodDelete, "/api/auth/profile"}, nil
		}
	}
	return Route{}, fmt.Errorf("%w: %s %s", ErrNoRoute, item.Action, item.Type)
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("syncqueue: backend returned %d: %s", e.StatusCode, e.Body)
}

// clientError reports 4xx responses. They say nothing about backend health
// and do not trip the breaker.
func clientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// HTTPConfig configures HTTPDispatcher.
type HTTPConfig struct {
	// BaseURL is the backend root, e.g. https://registry.example.ph.
	BaseURL string

	// APIKey is sent in the apikey header.
	APIKey string

	// Tokens supplies the bearer token.
	Tokens TokenSource

	// Timeout bounds each request. Default 15s.
	Timeout time.Duration

	// Client overrides the HTTP client.
	Client *http.Client
}

// HTTPDispatcher sends items to the REST backend through a circuit breaker.
type HTTPDispatcher struct {
	base    *url.URL
	apiKey  string
	tokens  TokenSource
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// HTTPOption configures an HTTPDispatcher.
type HTTPOption func(*HTTPDispatcher)

func WithDispatchLogger(logger zerolog.Logger) HTTPOption {
	return func(d *HTTPDispatcher) { d.logger = logger }
}

func WithDispatchMetrics(m *metrics.Metrics) HTTPOption {
	return func(d *HTTPDispatcher) { d.metrics = m }
}

const breakerName = "sync-backend"

// NewHTTPDispatcher validates cfg. The breaker opens after 5 consecutive
// failures and checks again after 30s.
func NewHTTPDispatcher(cfg HTTPConfig, opts ...HTTPOption) (*HTTPDispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("syncqueue: backend url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("syncqueue: backend url: %w", err)
	}
	if cfg.Tokens == nil {
		return nil, errors.New("syncqueue: token source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	d := &HTTPDispatcher{
		base:   base,
		apiKey: cfg.APIKey,
		tokens: cfg.Tokens,
		client: client,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return d, nil
}

// BreakerState returns the breaker state for status output.
func (d *HTTPDispatcher) BreakerState() string {
	return d.breaker.State().String()
}

// Dispatch sends item. Any non-2xx response is an error.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, item Item) error {
	route, err := RouteFor(item)
	if err != nil {
		d.metrics.SyncDispatch(string(item.Type), "no_route")
		return err
	}

	_, err = d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.send(ctx, route, item)
	})

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	default:
		result = "error"
	}
	d.metrics.SyncDispatch(string(item.Type), result)

	logger := logging.Ctx(ctx, d.logger)
	if err != nil {
		logger.Warn().Err(err).Str("item", item.ID).Str("method", route.Method).Str("path", route.Path).Msg("sync dispatch failed")
		return err
	}
	logger.Debug().Str("item", item.ID).Str("method", route.Method).Str("path", route.Path).Msg("sync dispatched")
	return nil
}

func (d *HTTPDispatcher) send(ctx context.Context, route Route, item Item) error {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("syncqueue: bearer token: %w", err)
	}

	var body io.Reader
	if route.Method != http.MethodDelete && len(item.Data) > 0 {
		body = bytes.NewReader(item.Data)
	}
	req, err := http.NewRequestWithContext(ctx, route.Method, d.base.String()+route.Path, body)
	if err != nil {
		return fmt.Errorf("syncqueue: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if d.apiKey != "" {
		req.Header.Set("apikey", d.apiKey)
	}
	req.Header.Set("X-Sync-Item", item.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("syncqueue: %s %s: %w", route.Method, route.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
