package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/config"
)

// retryDelay is the fixed pause before the single bounded retry on
// transient read failures.
const retryDelay = 300 * time.Millisecond

// Client talks to the backend's row API. All access is scoped by the user's
// bearer token; authorization is enforced server-side by row-level policy.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	userID  string
	hc      *http.Client
	logger  *zap.Logger
}

// NewClient creates a row-API client from backend settings. The user id is
// derived from the access token's subject.
func NewClient(cfg config.Backend, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend url not configured")
	}
	userID := ""
	if cfg.AccessToken != "" {
		id, err := ParseUserID(cfg.AccessToken)
		if err != nil {
			return nil, err
		}
		userID = id
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		token:   cfg.AccessToken,
		userID:  userID,
		hc:      &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}, nil
}

// UserID returns the authenticated user's id, or empty when unauthenticated.
func (c *Client) UserID() string {
	return c.userID
}

// Authenticated reports whether the client carries an access token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// Filter maps column names to predicate expressions ("eq.abc", "gt.5",
// "in.(a,b)"). Values are rendered verbatim into the query string.
type Filter map[string]string

// Eq builds an equality predicate.
func Eq(v string) string { return "eq." + v }

// Gt builds a greater-than predicate.
func Gt(v string) string { return "gt." + v }

// Lt builds a less-than predicate.
func Lt(v string) string { return "lt." + v }

// In builds a set-membership predicate.
func In(vals []string) string { return "in.(" + strings.Join(vals, ",") + ")" }

// Query describes a select: filter predicates, ordering and a range limit.
type Query struct {
	Filter Filter
	Order  string // e.g. "created_at.asc"
	Limit  int
	Offset int
}

// Insert posts a row and decodes the representation returned by the store
// (which carries the server-assigned id) into out, when out is non-nil.
func (c *Client) Insert(ctx context.Context, table string, row, out any) error {
	return c.do(ctx, http.MethodPost, table, nil, row, out)
}

// Select fetches rows matching q into out. Transient failures get a single
// bounded retry after a fixed delay before surfacing.
func (c *Client) Select(ctx context.Context, table string, q Query, out any) error {
	err := c.do(ctx, http.MethodGet, table, q.values(), nil, out)
	if err != nil && IsTransient(err) {
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return err
		}
		if c.logger != nil {
			c.logger.Warn("transient select failure, retrying once", zap.String("table", table), zap.Error(err))
		}
		err = c.do(ctx, http.MethodGet, table, q.values(), nil, out)
	}
	return err
}

// Update patches rows matching f. The filter participates in write guards:
// e.g. marking read with is_read=eq.false makes redundant issuance a no-op.
func (c *Client) Update(ctx context.Context, table string, f Filter, patch, out any) error {
	return c.do(ctx, http.MethodPatch, table, f.values(), patch, out)
}

// Delete removes rows matching f.
func (c *Client) Delete(ctx context.Context, table string, f Filter) error {
	return c.do(ctx, http.MethodDelete, table, f.values(), nil, nil)
}

func (f Filter) values() url.Values {
	v := url.Values{}
	for col, pred := range f {
		v.Set(col, pred)
	}
	return v
}

func (q Query) values() url.Values {
	v := q.Filter.values()
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body, out any) error {
	op := method + " " + table

	u := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return validationError(op, "encode request: "+err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return validationError(op, err.Error())
	}
	req.Header.Set("apikey", c.apiKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if out != nil && method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return transientError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transientError(op, err)
	}

	if resp.StatusCode >= 400 {
		return httpError(op, resp.StatusCode, string(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindUnknown, Op: op, Message: "decode response: " + err.Error()}
		}
	}
	return nil
}
