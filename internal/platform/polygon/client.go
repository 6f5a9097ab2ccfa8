// Package polygon is the REST client for the Polygon.io financials API, the
// source of the earnings calendar and of reported results.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/platform/transport"
)

const financialsPath = "/vX/reference/financials"

// Client is the Polygon.io financials client.
type Client struct {
	baseURL string
	apiKey  string
	http    *transport.Client
	now     func() time.Time
}

// NewClient creates a new Polygon client.
//
// baseURL is the API root, e.g. "https://api.polygon.io".
func NewClient(baseURL, apiKey string, opts transport.Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    transport.New(opts),
		now:     time.Now,
	}
}

// GetCalendar returns the quarterly filings listing used as the earnings
// calendar. Entries without a ticker or date are dropped.
func (c *Client) GetCalendar(ctx context.Context) ([]domain.CalendarEntry, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("limit", strconv.Itoa(1000))
	params.Set("sort", "period_of_report_date")
	params.Set("timeframe", "quarterly")

	resp, err := c.getFinancials(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("polygon: get calendar: %w", err)
	}

	entries := make([]domain.CalendarEntry, 0, len(resp.Results))
	for i := range resp.Results {
		if e, ok := resp.Results[i].ToCalendarEntry(); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// GetLatestReport returns the most recent quarterly filing for ticker.
// It returns domain.ErrNotFound when the result list is empty.
func (c *Client) GetLatestReport(ctx context.Context, ticker string) (domain.EarningsReport, error) {
	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("apiKey", c.apiKey)
	params.Set("limit", "1")
	params.Set("sort", "-filing_date")
	params.Set("timeframe", "quarterly")

	resp, err := c.getFinancials(ctx, params)
	if err != nil {
		return domain.EarningsReport{}, fmt.Errorf("polygon: get report %s: %w", ticker, err)
	}
	if len(resp.Results) == 0 {
		return domain.EarningsReport{}, fmt.Errorf("polygon: get report %s: %w", ticker, domain.ErrNotFound)
	}

	return resp.Results[0].ToEarningsReport(ticker, c.now()), nil
}

func (c *Client) getFinancials(ctx context.Context, params url.Values) (*APIFinancialsResponse, error) {
	body, err := c.http.Get(ctx, c.baseURL+financialsPath+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp APIFinancialsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode financials: %v", domain.ErrMalformed, err)
	}
	return &resp, nil
}
