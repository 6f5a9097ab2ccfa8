package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/platform/transport"
)

const calendarBody = `{
  "status": "OK",
  "results": [
    {"tickers": ["aapl"], "company_name": "Apple Inc.", "period_of_report_date": "2026-10-20"},
    {"ticker": "MSFT", "company_name": "Microsoft", "filing_date": "2026-10-21"},
    {"company_name": "No Ticker Corp", "period_of_report_date": "2026-10-20"},
    {"ticker": "NODATE"}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", transport.Options{Timeout: time.Second})
}

func TestGetCalendar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, financialsPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("apiKey"))
		assert.Equal(t, "1000", q.Get("limit"))
		assert.Equal(t, "period_of_report_date", q.Get("sort"))
		assert.Equal(t, "quarterly", q.Get("timeframe"))
		_, _ = w.Write([]byte(calendarBody))
	})

	entries, err := c.GetCalendar(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "AAPL", entries[0].Ticker)
	assert.Equal(t, "Apple Inc.", entries[0].CompanyName)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), entries[0].ReleaseAt)
	assert.Equal(t, "MSFT", entries[1].Ticker)
}

func TestGetLatestReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "AAPL", q.Get("ticker"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "-filing_date", q.Get("sort"))
		_, _ = w.Write([]byte(`{"results":[{"company_name":"Apple Inc.","filing_date":"2026-10-20","fiscal_period":"Q4",
			"financials":{"income_statement":{"basic_earnings_per_share":{"value":1.64,"unit":"USD / shares"}}}}]}`))
	})

	report, err := c.GetLatestReport(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", report.Ticker)
	assert.Equal(t, "Q4", report.FiscalPeriod)
	require.NotNil(t, report.ActualEPS)
	assert.InDelta(t, 1.64, *report.ActualEPS, 1e-9)
	require.NotNil(t, report.FilingDate)
	assert.Equal(t, domain.OutcomeBeat, report.Outcome())
}

func TestGetLatestReportMissingEPS(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"company_name":"Apple Inc.","financials":{}}]}`))
	})

	report, err := c.GetLatestReport(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Nil(t, report.ActualEPS)
	assert.Equal(t, domain.OutcomeUnknown, report.Outcome())
}

func TestGetLatestReportErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"empty results", 200, `{"results":[]}`, domain.ErrNotFound},
		{"malformed", 200, `{"results":`, domain.ErrMalformed},
		{"unauthorized", 401, `{"status":"ERROR"}`, domain.ErrUnauthorized},
		{"server error", 500, ``, domain.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetLatestReport(context.Background(), "AAPL")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
