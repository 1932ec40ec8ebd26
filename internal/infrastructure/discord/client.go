package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"borerelay/pkg/circuitbreaker"

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://discord.com/api/v10"

var (
	ErrRateLimited = errors.New("discord: rate limited")
	ErrNoGuild     = errors.New("discord: guild id not configured")
)

// StatusError is a non-2xx answer from the Discord API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Observer receives the outcome and latency of each member lookup.
type Observer interface {
	ObserveIdentityLookup(outcome string, d time.Duration)
}

type Config struct {
	BaseURL    string
	GuildID    string
	HTTPClient *http.Client
	Breaker    *circuitbreaker.CircuitBreaker
	Observer   Observer
}

// Client looks up the caller's membership in one guild using the caller's
// own OAuth access token.
type Client struct {
	baseURL    string
	guildID    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	observer   Observer
}

type guildMember struct {
	Roles []string `json:"roles"`
	Nick  string   `json:"nick"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.GuildID == "" {
		return nil, ErrNoGuild
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}

	return &Client{
		baseURL:    baseURL,
		guildID:    cfg.GuildID,
		httpClient: httpClient,
		breaker:    breaker,
		observer:   cfg.Observer,
	}, nil
}

// MemberRoles returns the role ids the token's owner holds in the guild.
// Rejections of the token itself (4xx other than 429) are returned without
// counting against the circuit breaker.
func (c *Client) MemberRoles(ctx context.Context, token string) ([]string, error) {
	start := time.Now()

	var rejected error
	roles, err := circuitbreaker.Call(ctx, c.breaker, func(ctx context.Context) ([]string, error) {
		roles, err := c.fetchMember(ctx, token)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			rejected = err
			return nil, nil
		}
		return roles, err
	})
	if err == nil && rejected != nil {
		err = rejected
	}

	c.observe(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *Client) fetchMember(ctx context.Context, token string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/users/@me/guilds/%s/member", c.baseURL, url.PathEscape(c.guildID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	authCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(authCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w (retry after %ss)", ErrRateLimited, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var member guildMember
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return nil, fmt.Errorf("decode member: %w", err)
	}
	if member.Roles == nil {
		member.Roles = []string{}
	}
	return member.Roles, nil
}

func (c *Client) observe(err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	var statusErr *StatusError
	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrOpen):
		outcome = "circuit_open"
	case errors.Is(err, ErrRateLimited):
		outcome = "rate_limited"
	case errors.As(err, &statusErr):
		outcome = fmt.Sprintf("status_%d", statusErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	c.observer.ObserveIdentityLookup(outcome, d)
}
