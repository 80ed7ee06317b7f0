package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/runboard/runboard/internal/dataset"
	"github.com/runboard/runboard/internal/model"
	"github.com/runboard/runboard/internal/ratelimit"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL = "https://www.strava.com/api/v3"

	// PageSize is the largest page the listing endpoint serves.
	PageSize = 200

	// MaxActivities caps a single fetch.
	MaxActivities = 1000

	// maxPages guards against an upstream that never returns a short page.
	maxPages = 100

	budgetKey = "strava"
)

// Documented upstream limits: 100 requests per 15 minutes, 1000 per day.
var DefaultLimits = []ratelimit.Window{
	{Limit: 100, Period: 15 * time.Minute},
	{Limit: 1000, Period: 24 * time.Hour},
}

// Client reads the athlete's activity listing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	budget     *ratelimit.Limiter
}

type ClientConfig struct {
	BaseURL    string             // DefaultAPIURL when empty
	HTTPClient *http.Client       // http.DefaultClient when nil
	Budget     *ratelimit.Limiter // DefaultLimits when nil
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	budget := cfg.Budget
	if budget == nil {
		budget = ratelimit.New(DefaultLimits...)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		budget:     budget,
	}
}

// Activities pages through the listing newest first until limit records, an
// empty or short page, or the page guard. Records that are not JSON objects
// come back as integrity errors and count toward the limit. Any page
// failure discards what was already fetched and returns a typed error:
// *RateLimitError, *NetworkError or *AuthError.
func (c *Client) Activities(ctx context.Context, token *oauth2.Token, limit int) ([]model.Activity, []*dataset.DataIntegrityError, error) {
	if limit <= 0 || limit > MaxActivities {
		limit = MaxActivities
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	var (
		activities []model.Activity
		skipped    []*dataset.DataIntegrityError
	)
	for page := 1; page <= maxPages; page++ {
		records, err := c.page(ctx, httpClient, page, PageSize)
		if err != nil {
			return nil, nil, err
		}

		// Page boundaries depend on per_page, so it stays fixed and the
		// last page is trimmed instead.
		taken := 0
		for _, rec := range records[:min(len(records), limit-len(activities)-len(skipped))] {
			taken++
			if rec.err != nil {
				skipped = append(skipped, rec.err)
				continue
			}
			activities = append(activities, rec.activity)
		}
		slog.Debug("strava page fetched", "page", page, "count", taken, "total", len(activities), "skipped", len(skipped))

		if len(records) < PageSize || len(activities)+len(skipped) >= limit {
			return activities, skipped, nil
		}
	}

	slog.Warn("strava page limit reached", "pages", maxPages, "total", len(activities))
	return activities, skipped, nil
}

// record is one decoded listing entry, or the reason it could not be decoded.
type record struct {
	activity model.Activity
	err      *dataset.DataIntegrityError
}

// page fetches one listing page.
func (c *Client) page(ctx context.Context, httpClient *http.Client, page, perPage int) ([]record, error) {
	if !c.budget.Allow(budgetKey) {
		return nil, &RateLimitError{Page: page, Local: true, RetryAfter: c.budget.RetryAfter(budgetKey)}
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	endpoint := c.baseURL + "/athlete/activities?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		// The oauth2 transport reports token problems as transport errors.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &AuthError{Err: err}
		}
		return nil, &NetworkError{Page: page, Err: err}
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Page:       page,
			Limit:      parseUsage(resp.Header.Get("X-RateLimit-Limit")),
			Usage:      parseUsage(resp.Header.Get("X-RateLimit-Usage")),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Err: fmt.Errorf("listing returned %d: %s", resp.StatusCode, readSnippet(resp.Body))}
	case resp.StatusCode >= 500:
		return nil, &NetworkError{Page: page, Status: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("strava listing page %d returned %d: %s", page, resp.StatusCode, readSnippet(resp.Body))
	}

	var raws []json.RawMessage
	err = json.NewDecoder(resp.Body).Decode(&raws)
	if err != nil {
		// A body cut off mid-stream is a connectivity failure, not bad data.
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &NetworkError{Page: page, Status: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("failed to decode strava page %d: %w", page, err)
	}

	decoded := make([]record, 0, len(raws))
	for i, raw := range raws {
		a, err := decodeActivity(raw)
		if err != nil {
			slog.Warn("strava record not decodable", "page", page, "error", err)
			decoded = append(decoded, record{err: &dataset.DataIntegrityError{
				Field:  fmt.Sprintf("page %d record %d", page, i+1),
				Reason: err.Error(),
			}})
			continue
		}
		decoded = append(decoded, record{activity: a})
	}

	return decoded, nil
}

// parseUsage reads "short,daily" counter pairs.
func parseUsage(v string) Usage {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return Usage{}
	}
	short, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	daily, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return Usage{}
	}
	return Usage{Short: short, Daily: daily}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
