// Package httpapi is the HTTP implementation of remote.API against the admin
// backend's JSON endpoints. Page fetches are idempotent and retried with
// exponential backoff; mutations are sent exactly once and their failures are
// classified into core.MutationError for the mutation engine.
package httpapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
	"github.com/userdesk/userdesk/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// Config tunes the HTTP client.
type Config struct {
	// BaseURL points at the admin API root, e.g. https://api.example.com/api/v1.
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Timeout bounds each request, retries included.
	Timeout time.Duration
	// PageRetries is the number of extra attempts for a failed page fetch.
	// Mutations never retry.
	PageRetries uint64
	// PageRetryBase seeds the exponential backoff between page attempts.
	PageRetryBase time.Duration
	// Debug mirrors requests and responses to the log.
	Debug bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.PageRetries == 0 {
		out.PageRetries = 2
	}
	if out.PageRetryBase <= 0 {
		out.PageRetryBase = 200 * time.Millisecond
	}
	return out
}

// Client talks to the admin backend. It is safe for concurrent use.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient validates cfg and builds the client.
func NewClient(cfg Config) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute with a host, got: %s", cfg.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	cfg = cfg.withDefaults()
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Debug {
		httpClient.SetDebug(true)
	}
	// Correlate every request so backend logs can be joined with ours.
	httpClient.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.SetHeader(requestIDHeader, uuid.NewString())
		return nil
	})
	return &Client{http: httpClient, cfg: cfg}, nil
}

// apiError is the backend's problem envelope.
type apiError struct {
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *apiError) text() string {
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

type pageEnvelope struct {
	Data       []*user.User `json:"data"`
	NextCursor string       `json:"nextCursor,omitempty"`
	Total      int          `json:"total,omitempty"`
}

type userEnvelope struct {
	Data *user.User `json:"data"`
}

type banBody struct {
	Banned bool    `json:"banned"`
	Reason *string `json:"reason,omitempty"`
}

// FetchPage lists one page. Transient failures (network, 5xx, 429) retry with
// exponential backoff since listing is idempotent.
func (c *Client) FetchPage(ctx context.Context, req remote.PageRequest) (*remote.PageResult, error) {
	log := logger.FromContext(ctx)
	query := map[string]string{}
	if req.Criteria.Search != "" {
		query["search"] = req.Criteria.Search
	}
	if req.Criteria.Role != "" {
		query["role"] = string(req.Criteria.Role)
	}
	if req.Criteria.Status != remote.StatusAny {
		query["status"] = string(req.Criteria.Status)
	}
	if req.Cursor != "" {
		query["cursor"] = req.Cursor
	}
	if req.Limit > 0 {
		query["limit"] = strconv.Itoa(req.Limit)
	}
	var env pageEnvelope
	backoff := retry.WithMaxRetries(c.cfg.PageRetries, retry.NewExponential(c.cfg.PageRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(&env).
			SetError(&apiError{}).
			Get("/users")
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.IsError() {
			err := respError(resp)
			if transientStatus(resp.StatusCode()) {
				log.Debug("page fetch failed, will retry", "status", resp.StatusCode(), "cursor", req.Cursor)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch users page: %w", err)
	}
	return &remote.PageResult{
		Items:      env.Data,
		NextCursor: env.NextCursor,
		Total:      env.Total,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// CreateUser persists a draft.
func (c *Client) CreateUser(ctx context.Context, draft *user.Draft) (*user.User, error) {
	var env userEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(draft).
		SetResult(&env).
		SetError(&apiError{}).
		Post("/users")
	return mutationResult(&env, resp, err)
}

// UpdateUser applies a patch to one user.
func (c *Client) UpdateUser(ctx context.Context, id core.ID, patch *user.Patch) (*user.User, error) {
	var env userEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(patch).
		SetResult(&env).
		SetError(&apiError{}).
		Patch("/users/" + url.PathEscape(id.String()))
	return mutationResult(&env, resp, err)
}

// DeleteUser removes one user.
func (c *Client) DeleteUser(ctx context.Context, id core.ID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Delete("/users/" + url.PathEscape(id.String()))
	if err != nil {
		return core.NewTransportFailure(err)
	}
	if resp.IsError() {
		return classifyStatus(resp)
	}
	return nil
}

// SetBan flips one user's ban status. A non-nil reason bans, nil lifts.
func (c *Client) SetBan(ctx context.Context, id core.ID, reason *string) (*user.User, error) {
	var env userEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(banBody{Banned: reason != nil, Reason: reason}).
		SetResult(&env).
		SetError(&apiError{}).
		Put("/users/" + url.PathEscape(id.String()) + "/ban")
	return mutationResult(&env, resp, err)
}

func mutationResult(env *userEnvelope, resp *resty.Response, err error) (*user.User, error) {
	if err != nil {
		return nil, core.NewTransportFailure(err)
	}
	if resp.IsError() {
		return nil, classifyStatus(resp)
	}
	if env.Data == nil {
		return nil, core.NewTransportFailure(fmt.Errorf("empty response body (status %d)", resp.StatusCode()))
	}
	return env.Data, nil
}

// classifyStatus maps a mutation's error response: 4xx is a server rejection
// carrying the backend's message verbatim, everything else a transport
// failure.
func classifyStatus(resp *resty.Response) *core.MutationError {
	err := respError(resp)
	code := resp.StatusCode()
	if code >= 400 && code < 500 && !transientStatus(code) {
		return core.NewRejected(err.Error())
	}
	return core.NewTransportFailure(err)
}

func respError(resp *resty.Response) error {
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil && apiErr.text() != "" {
		return fmt.Errorf("%s", apiErr.text())
	}
	return fmt.Errorf("API error: %s (status %d)", resp.String(), resp.StatusCode())
}

func transientStatus(code int) bool {
	return code >= 500 || code == 408 || code == 429
}

var _ remote.API = (*Client)(nil)
