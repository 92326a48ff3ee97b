// Package sleeper is a read-only client for the public Sleeper fantasy API.
package sleeper

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
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/failsafehttp"
	"golang.org/x/time/rate"

	"github.com/anatolykoptev/huddle/internal/config"
	"github.com/anatolykoptev/huddle/internal/metrics"
)

const (
	// maxBodyBytes bounds a single response; the full players dump is ~10 MB.
	maxBodyBytes = 32 << 20
	userAgent    = "huddle/1.0 (+https://github.com/anatolykoptev/huddle)"
)

// Endpoint templates, used as metric labels and in errors.
const (
	EndpointUser    = "/user/{username}"
	EndpointLeagues = "/user/{user_id}/leagues/{sport}/{season}"
	EndpointLeague  = "/league/{league_id}"
	EndpointRosters = "/league/{league_id}/rosters"
	EndpointPlayers = "/players/{sport}"
)

// Options configures a Client. Zero values fall back to conservative defaults.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RetryMaxDelay    time.Duration
	RatePerMinute    int
	BreakerThreshold int
	BreakerReset     time.Duration
	// Transport is the innermost round tripper; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// OptionsFromConfig maps the environment config onto client options.
func OptionsFromConfig(cfg config.SleeperConfig) Options {
	return Options{
		BaseURL:          cfg.BaseURL,
		Timeout:          cfg.Timeout,
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.RetryDelay,
		RetryMaxDelay:    cfg.RetryMaxDelay,
		RatePerMinute:    cfg.RatePerMinute,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
	}
}

// Client fetches users, leagues and rosters. Every method returns the typed
// value together with the raw body so callers can keep an exact snapshot.
type Client struct {
	baseURL  string
	http     *http.Client
	bulk     *http.Client
	limiter  *rate.Limiter
	breaker  *breaker
	validate *validator
}

// New builds a Client with retrying transport, rate limiter and breaker.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.sleeper.app/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 900
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.RetryMaxDelay < opts.RetryDelay {
		opts.RetryMaxDelay = 10 * opts.RetryDelay
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.MaxRetries > 0 {
		policy := failsafehttp.NewRetryPolicyBuilder().
			WithBackoff(opts.RetryDelay, opts.RetryMaxDelay).
			WithMaxRetries(opts.MaxRetries).
			ReturnLastFailure().
			OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
				attrs := []any{slog.Int("attempt", e.Attempts())}
				if resp := e.LastResult(); resp != nil {
					attrs = append(attrs, slog.Int("status", resp.StatusCode))
					drain(resp.Body)
				}
				if err := e.LastError(); err != nil {
					attrs = append(attrs, slog.Any("error", err))
				}
				slog.Debug("retrying sleeper request", attrs...)
			}).
			Build()
		transport = failsafehttp.NewRoundTripper(transport, policy)
	}

	burst := opts.RatePerMinute / 60
	if burst < 1 {
		burst = 1
	}

	checkRedirect := func(_ *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout, Transport: transport, CheckRedirect: checkRedirect},
		// The players dump is bounded by the caller's context only.
		bulk: &http.Client{Transport: transport, CheckRedirect: checkRedirect},
		limiter:  rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), burst),
		breaker:  newBreaker(opts.BreakerThreshold, opts.BreakerReset),
		validate: v,
	}, nil
}

// User fetches an account by username. An unknown username is not an error:
// Sleeper answers null, which yields an empty User and raw "null".
func (c *Client) User(ctx context.Context, username string) (User, json.RawMessage, error) {
	body, err := c.get(ctx, EndpointUser, "/user/"+url.PathEscape(username))
	if err != nil {
		return User{}, nil, err
	}
	c.validate.warn(payloadUser, EndpointUser, body)

	var u *User
	if err := json.Unmarshal(body, &u); err != nil {
		return User{}, nil, &FetchError{Kind: KindParse, Endpoint: EndpointUser, Err: err}
	}
	if u == nil {
		return User{}, body, nil
	}
	return *u, body, nil
}

// UserLeagues lists a user's leagues for one sport and season. A null body
// becomes an empty list with raw "[]".
func (c *Client) UserLeagues(ctx context.Context, userID, sport, season string) ([]League, json.RawMessage, error) {
	path := fmt.Sprintf("/user/%s/leagues/%s/%s",
		url.PathEscape(userID), url.PathEscape(sport), url.PathEscape(season))
	body, err := c.get(ctx, EndpointLeagues, path)
	if err != nil {
		return nil, nil, err
	}
	if isNull(body) {
		return []League{}, json.RawMessage("[]"), nil
	}
	c.validate.warn(payloadLeagues, EndpointLeagues, body)

	var leagues []League
	if err := json.Unmarshal(body, &leagues); err != nil {
		return nil, nil, &FetchError{Kind: KindParse, Endpoint: EndpointLeagues, Err: err}
	}
	return leagues, body, nil
}

// League fetches one league. An unknown id yields an empty League and raw "null".
func (c *Client) League(ctx context.Context, leagueID string) (League, json.RawMessage, error) {
	body, err := c.get(ctx, EndpointLeague, "/league/"+url.PathEscape(leagueID))
	if err != nil {
		return League{}, nil, err
	}
	c.validate.warn(payloadLeague, EndpointLeague, body)

	var l *League
	if err := json.Unmarshal(body, &l); err != nil {
		return League{}, nil, &FetchError{Kind: KindParse, Endpoint: EndpointLeague, Err: err}
	}
	if l == nil {
		return League{}, body, nil
	}
	return *l, body, nil
}

// Rosters fetches every roster in a league. A null body becomes an empty list.
func (c *Client) Rosters(ctx context.Context, leagueID string) ([]Roster, json.RawMessage, error) {
	body, err := c.get(ctx, EndpointRosters, "/league/"+url.PathEscape(leagueID)+"/rosters")
	if err != nil {
		return nil, nil, err
	}
	if isNull(body) {
		return []Roster{}, json.RawMessage("[]"), nil
	}
	c.validate.warn(payloadRosters, EndpointRosters, body)

	var rosters []Roster
	if err := json.Unmarshal(body, &rosters); err != nil {
		return nil, nil, &FetchError{Kind: KindParse, Endpoint: EndpointRosters, Err: err}
	}
	return rosters, body, nil
}

// Players downloads the full player table for a sport. Sleeper asks callers
// to do this at most once a day; it is never called during a chat turn.
func (c *Client) Players(ctx context.Context, sport string) (json.RawMessage, error) {
	body, err := c.get(ctx, EndpointPlayers, "/players/"+url.PathEscape(sport))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &FetchError{Kind: KindParse, Endpoint: EndpointPlayers, Err: fmt.Errorf("invalid JSON body")}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.SleeperDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.SleeperRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	}()

	if !c.breaker.allow() {
		return nil, &FetchError{Kind: KindCircuitOpen, Endpoint: endpoint, Err: ErrCircuitOpen}
	}

	body, err = c.do(ctx, endpoint, path)
	if countsAsOutage(err) {
		c.breaker.failure()
	} else {
		c.breaker.success()
	}
	return body, err
}

func (c *Client) do(ctx context.Context, endpoint, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	hc := c.http
	if endpoint == EndpointPlayers {
		hc = c.bulk
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, &FetchError{Kind: KindStatus, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &FetchError{Kind: KindParse, Endpoint: endpoint, Err: fmt.Errorf("empty body")}
	}
	return body, nil
}

// countsAsOutage reports whether err says the upstream itself is unhealthy.
// A canceled caller or a 404 says nothing about Sleeper.
func countsAsOutage(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case KindNetwork:
		return !errors.Is(fe.Err, context.Canceled)
	case KindStatus:
		return fe.StatusCode >= 500
	}
	return false
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	return "error"
}

func isNull(body []byte) bool {
	return bytes.Equal(body, []byte("null"))
}

func drain(r io.ReadCloser) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	_ = r.Close()
}
