package geoquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-scooterscan/types"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/paulmach/orb"
	"golang.org/x/time/rate"
)

// Querier issues one discovery query for a region.
type Querier interface {
	Query(ctx context.Context, r types.Region) (Result, error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context, r types.Region) (Result, error)

func (f QuerierFunc) Query(ctx context.Context, r types.Region) (Result, error) { return f(ctx, r) }

// Result is what one query returned. Points holds anonymous positions that
// carry no identifier; they only inform partitioning.
type Result struct {
	Records []types.Record
	Points  []orb.Point
}

// Positions returns every coordinate seen in the result, records first.
func (r Result) Positions() []orb.Point {
	out := make([]orb.Point, 0, len(r.Records)+len(r.Points))
	for _, rec := range r.Records {
		out = append(out, rec.Point)
	}
	return append(out, r.Points...)
}

func (r Result) Empty() bool { return len(r.Records) == 0 && len(r.Points) == 0 }

// Limiter paces outgoing calls. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Observer is notified once per upstream call.
type Observer interface {
	ObserveQuery(provider, outcome string, elapsed time.Duration)
}

const defaultTimeout = 30 * time.Second

// Client is the transport shared by the upstream providers: it holds the
// rate limiting policy, the HTTP client and the status classification.
type Client struct {
	httpClient   *http.Client
	limiter      Limiter
	observer     Observer
	logger       log.Logger
	authStatuses map[int]bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithLimiter(l Limiter) Option { return func(c *Client) { c.limiter = l } }

// WithMinInterval enforces a minimum gap between calls.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func WithObserver(o Observer) Option { return func(c *Client) { c.observer = o } }

func WithLogger(l log.Logger) Option { return func(c *Client) { c.logger = l } }

// WithAuthStatuses adds upstream specific status codes that mean the
// credential is no longer accepted.
func WithAuthStatuses(codes ...int) Option {
	return func(c *Client) {
		for _, code := range codes {
			c.authStatuses[code] = true
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Inf, 1),
		logger:       log.NewNopLogger(),
		authStatuses: map[int]bool{http.StatusUnauthorized: true, http.StatusForbidden: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do waits for the limiter, performs req and returns the body of a 2xx
// response. Failures come back as *QueryError, except context cancellation
// which is returned as is.
func (c *Client) do(ctx context.Context, provider string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := c.roundTrip(ctx, provider, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if k := KindOf(err); k != 0 {
			outcome = k.String()
		}
	}
	if c.observer != nil {
		c.observer.ObserveQuery(provider, outcome, time.Since(start))
	}
	level.Debug(c.logger).Log("msg", "upstream query", "provider", provider, "url", req.URL.Path, "outcome", outcome, "elapsed", time.Since(start))
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, provider string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &QueryError{Kind: Transient, Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &QueryError{Kind: Transient, Provider: provider, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, &QueryError{
		Kind:     c.classifyStatus(resp.StatusCode),
		Provider: provider,
		Status:   resp.StatusCode,
		Err:      errors.New(http.StatusText(resp.StatusCode)),
	}
}

func (c *Client) classifyStatus(code int) FailureKind {
	switch {
	case c.authStatuses[code]:
		return AuthExpired
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return Transient
	default:
		return MalformedResponse
	}
}
