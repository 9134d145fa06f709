// Package fetcher retrieves alarmeringen.nl pages, directly or through the
// proxy endpoint, and hands them to the scraper.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"alarm/live/internal/report"
	"alarm/live/internal/scraper"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrUnexpectedStatus is returned for any non-200 upstream response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrBodyTooLarge is returned when a page exceeds the configured size.
	ErrBodyTooLarge = errors.New("response body too large")
)

const (
	// ProxyParam is the query parameter carrying the absolute target URL.
	ProxyParam = "proxyUrl"

	defaultTimeout      = 15 * time.Second
	defaultConcurrency  = 8
	defaultMaxBodyBytes = 5 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL is the scraped site's origin; report paths are resolved against it.
	BaseURL string
	// ProxyURL, when set, routes every request through a pass-through relay.
	ProxyURL          string
	UserAgent         string
	Timeout           time.Duration
	Concurrency       int
	RequestsPerSecond float64
	MaxBodyBytes      int64
}

// Client fetches and parses listing and detail pages.
type Client struct {
	http        *http.Client
	base        *url.URL
	proxy       *url.URL
	userAgent   string
	concurrency int
	maxBody     int64
	limiter     *rate.Limiter
	log         zerolog.Logger
}

// New validates opts and builds a Client.
func New(opts Options, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}

	var proxy *url.URL
	if opts.ProxyURL != "" {
		proxy, err = url.Parse(opts.ProxyURL)
		if err != nil || !proxy.IsAbs() {
			return nil, fmt.Errorf("invalid proxy url %q", opts.ProxyURL)
		}
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		base:        base,
		proxy:       proxy,
		userAgent:   opts.UserAgent,
		concurrency: opts.Concurrency,
		maxBody:     opts.MaxBodyBytes,
		limiter:     rate.NewLimiter(limit, opts.Concurrency),
		log:         log.With().Str("component", "fetcher").Logger(),
	}, nil
}

// ListReports fetches a region listing page and returns its report rows.
func (c *Client) ListReports(ctx context.Context, regionURL string) ([]report.ListItem, error) {
	body, err := c.get(ctx, regionURL)
	if err != nil {
		return nil, err
	}

	items, err := scraper.ParseListing(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing listing %s: %w", regionURL, err)
	}
	return items, nil
}

// GetReportDetails fetches one report page. path is usually the site-relative
// href from the listing; absolute URLs are used as they are.
func (c *Client) GetReportDetails(ctx context.Context, path string) (report.Details, error) {
	target, err := c.resolve(path)
	if err != nil {
		return report.Details{}, err
	}

	body, err := c.get(ctx, target)
	if err != nil {
		return report.Details{}, err
	}

	details, err := scraper.ParseDetail(bytes.NewReader(body))
	if err != nil {
		return report.Details{}, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return details, nil
}

// ListAllReportDetails lists a region and fetches every report concurrently.
// Results keep listing order. The first failure cancels the remaining fetches
// and fails the whole call.
func (c *Client) ListAllReportDetails(ctx context.Context, regionURL string) ([]report.Details, error) {
	items, err := c.ListReports(ctx, regionURL)
	if err != nil {
		return nil, err
	}

	details := make([]report.Details, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			d, err := c.GetReportDetails(gctx, item.URL)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.log.Debug().Str("region", regionURL).Int("reports", len(details)).Msg("fetched report details")
	return details, nil
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid report path %q: %w", path, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// requestURL wraps target in the proxy URL when one is configured.
func (c *Client) requestURL(target string) string {
	if c.proxy == nil {
		return target
	}
	u := *c.proxy
	q := u.Query()
	q.Set(ProxyParam, target)
	u.RawQuery = q.Encode()
	return u.String()
}

// get returns the full page body. Pages over the size limit fail instead of
// being parsed truncated.
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(target), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "text/html")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %w: %d", target, ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("fetching %s: %w: limit %d bytes", target, ErrBodyTooLarge, c.maxBody)
	}

	c.log.Debug().
		Str("url", target).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("page fetched")

	return body, nil
}
