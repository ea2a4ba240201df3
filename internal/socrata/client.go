package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"

	"github.com/mohammed-shakir/opendata-map/internal/core/observability"
	"github.com/mohammed-shakir/opendata-map/internal/core/upstream"
)

const (
	DefaultPageSize = 1000
	upstreamName    = "socrata"
)

type Config struct {
	AppToken string
	PageSize int
	// Retries is the number of extra attempts per page. Zero keeps the
	// loop fail-fast.
	Retries   uint64
	RetryWait time.Duration
}

type Client struct {
	logger *slog.Logger
	http   *http.Client
	cfg    Config
}

func New(logger *slog.Logger, httpClient *http.Client, cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{logger: logger, http: httpClient, cfg: cfg}
}

// FetchAll requests pages of endpoint until one comes back empty and returns
// the concatenated records in upstream order. Pages are fetched one at a time;
// any failed page discards everything fetched so far.
func (c *Client) FetchAll(ctx context.Context, endpoint string, q Query) ([]json.RawMessage, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	limit := c.cfg.PageSize
	if q.Limit > 0 {
		limit = q.Limit
	}
	resource := resourceID(base)

	var all []json.RawMessage
	for offset, page := 0, 1; ; offset, page = offset+limit, page+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := c.fetchPageWithRetry(ctx, base, q.Params(limit, offset))
		observability.IncPagesFetched(resource)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", resource, page, err)
		}
		c.logger.Debug("page fetched", "resource", resource, "page", page, "offset", offset, "rows", len(rows))
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
	}
	return all, nil
}

func (c *Client) fetchPageWithRetry(ctx context.Context, base *url.URL, params url.Values) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	attempt := 0
	err := backoff.Retry(
		func() error {
			attempt++
			var err error
			rows, err = c.fetchPage(ctx, base, params)
			if err == nil {
				return nil
			}
			var apiErr *upstream.APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if uint64(attempt) <= c.cfg.Retries {
				c.logger.Warn("page failed, retrying", "attempt", attempt, "err", err)
			}
			return err
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryWait), c.cfg.Retries),
			ctx,
		),
	)
	return rows, err
}

func (c *Client) fetchPage(ctx context.Context, base *url.URL, params url.Values) ([]json.RawMessage, error) {
	u := *base
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AppToken != "" {
		req.Header.Set("X-App-Token", c.cfg.AppToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.IncUpstreamError(upstreamName, "transport")
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency(upstreamName, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.IncUpstreamError(upstreamName, "status")
		return nil, upstream.FromResponse(upstreamName, resp)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var rows []json.RawMessage
	if err := sonic.Unmarshal(b, &rows); err != nil {
		observability.IncUpstreamError(upstreamName, "decode")
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return rows, nil
}

// resourceID turns ".../resource/br6j-yp22.json" into "br6j-yp22".
func resourceID(u *url.URL) string {
	return strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
}
