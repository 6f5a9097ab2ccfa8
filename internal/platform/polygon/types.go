package polygon

import (
	"strings"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// --------------------------------------------------------------------------
// Financials API DTOs
// --------------------------------------------------------------------------

// APIFinancialsResponse is the envelope of /vX/reference/financials.
type APIFinancialsResponse struct {
	Status    string         `json:"status"`
	RequestID string         `json:"request_id"`
	Count     int            `json:"count"`
	NextURL   string         `json:"next_url"`
	Results   []APIFinancial `json:"results"`
}

// APIFinancial is a single quarterly filing. Every field is optional on the
// wire.
type APIFinancial struct {
	Ticker             string            `json:"ticker"`
	Tickers            []string          `json:"tickers"`
	CompanyName        string            `json:"company_name"`
	CIK                string            `json:"cik"`
	FiscalPeriod       string            `json:"fiscal_period"`
	FiscalYear         string            `json:"fiscal_year"`
	StartDate          string            `json:"start_date"`
	EndDate            string            `json:"end_date"`
	FilingDate         string            `json:"filing_date"`
	PeriodOfReportDate string            `json:"period_of_report_date"`
	Financials         *APIFinancialData `json:"financials"`
}

// APIFinancialData holds the statement sections we read.
type APIFinancialData struct {
	IncomeStatement *APIIncomeStatement `json:"income_statement"`
}

// APIIncomeStatement holds the income statement datapoints we read.
type APIIncomeStatement struct {
	BasicEPS   *APIDataPoint `json:"basic_earnings_per_share"`
	DilutedEPS *APIDataPoint `json:"diluted_earnings_per_share"`
}

// APIDataPoint is a single reported value.
type APIDataPoint struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
	Label string   `json:"label"`
}

// --------------------------------------------------------------------------
// Conversion helpers: API types -> domain types
// --------------------------------------------------------------------------

// PrimaryTicker returns the filing's ticker, preferring the scalar field.
func (f *APIFinancial) PrimaryTicker() string {
	if f.Ticker != "" {
		return strings.ToUpper(f.Ticker)
	}
	for _, t := range f.Tickers {
		if t != "" {
			return strings.ToUpper(t)
		}
	}
	return ""
}

// BasicEPS returns the reported basic EPS or nil.
func (f *APIFinancial) BasicEPS() *float64 {
	if f.Financials == nil || f.Financials.IncomeStatement == nil {
		return nil
	}
	is := f.Financials.IncomeStatement
	if is.BasicEPS != nil && is.BasicEPS.Value != nil {
		v := *is.BasicEPS.Value
		return &v
	}
	return nil
}

// ToCalendarEntry converts a filing to a calendar entry. ok is false when
// the ticker or release date cannot be determined.
func (f *APIFinancial) ToCalendarEntry() (domain.CalendarEntry, bool) {
	ticker := f.PrimaryTicker()
	if ticker == "" {
		return domain.CalendarEntry{}, false
	}

	release, ok := parseDate(f.PeriodOfReportDate)
	if !ok {
		release, ok = parseDate(f.FilingDate)
	}
	if !ok {
		return domain.CalendarEntry{}, false
	}

	return domain.CalendarEntry{
		Ticker:      ticker,
		CompanyName: f.CompanyName,
		ReleaseAt:   release,
	}, true
}

// ToEarningsReport converts a filing to a verified report for ticker.
func (f *APIFinancial) ToEarningsReport(ticker string, fetchedAt time.Time) domain.EarningsReport {
	r := domain.EarningsReport{
		Ticker:       ticker,
		CompanyName:  f.CompanyName,
		FiscalPeriod: f.FiscalPeriod,
		FiscalYear:   f.FiscalYear,
		ActualEPS:    f.BasicEPS(),
		FetchedAt:    fetchedAt,
	}
	if r.CompanyName == "" {
		r.CompanyName = ticker
	}
	if t, ok := parseDate(f.FilingDate); ok {
		r.FilingDate = &t
	}
	return r
}

// parseDate accepts a bare date (midnight UTC) or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
