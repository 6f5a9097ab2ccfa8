package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or numeric string. Unparseable
// values decode to zero rather than failing the whole payload.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		v = 0
	}
	*f = flexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// Market DTOs
// --------------------------------------------------------------------------

// APIMarketsPage is the paginated envelope some deployments return instead
// of a bare list.
type APIMarketsPage struct {
	Data       []APIMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// APIMarket is a market as returned by the markets endpoint. Field names
// differ between API revisions, so both spellings are accepted.
type APIMarket struct {
	ID          string    `json:"id"`
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	Slug        string    `json:"market_slug"`
	Active      *flexBool `json:"active"`
	Closed      flexBool  `json:"closed"`
	EndDate     string    `json:"end_date"`
	EndDateISO  string    `json:"end_date_iso"`
	Volume      flexFloat `json:"volume"`
	Liquidity   flexFloat `json:"liquidity"`
	Tokens      []Token   `json:"tokens"`
}

// Token is an outcome token inside a market.
type Token struct {
	TokenID string    `json:"token_id"`
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
	Winner  bool      `json:"winner"`
}

// ToDomainMarket converts an APIMarket. eventID is the ticker the search was
// issued for.
func (m *APIMarket) ToDomainMarket(eventID string) domain.Market {
	dm := domain.Market{
		ID:        m.ID,
		Question:  m.Question,
		EventID:   eventID,
		Slug:      m.Slug,
		Outcomes:  [2]string{"Yes", "No"},
		Volume:    float64(m.Volume),
		Liquidity: float64(m.Liquidity),
		Active:    !bool(m.Closed) && (m.Active == nil || bool(*m.Active)),
	}
	if dm.ID == "" {
		dm.ID = m.ConditionID
	}

	dm.TokenIDs = placeTokens(m.Tokens)

	for _, s := range []string{m.EndDateISO, m.EndDate} {
		if t, ok := parseTime(s); ok {
			dm.ClosesAt = &t
			break
		}
	}
	return dm
}

// placeTokens orders the outcome tokens as [Yes, No]. Tokens are matched by
// their outcome label; unlabelled ones fill the remaining slots in listing
// order.
func placeTokens(tokens []Token) [2]string {
	var ids [2]string
	var rest []string
	for _, tok := range tokens {
		switch strings.ToLower(strings.TrimSpace(tok.Outcome)) {
		case "yes":
			if ids[0] == "" {
				ids[0] = tok.TokenID
				continue
			}
		case "no":
			if ids[1] == "" {
				ids[1] = tok.TokenID
				continue
			}
		}
		rest = append(rest, tok.TokenID)
	}
	for i := range ids {
		if ids[i] == "" && len(rest) > 0 {
			ids[i], rest = rest[0], rest[1:]
		}
	}
	return ids
}

// --------------------------------------------------------------------------
// Order book DTOs
// --------------------------------------------------------------------------

// APIBook is the response of GET /book.
type APIBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// APIPriceLevel is a single level. Prices and sizes are decimal strings.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ToDomainOrderBook converts a book. Levels whose price is not a valid
// decimal are skipped.
func (b *APIBook) ToDomainOrderBook(tokenID string) domain.OrderBook {
	book := domain.OrderBook{TokenID: tokenID}
	if b.AssetID != "" {
		book.TokenID = b.AssetID
	}

	var bestBid, bestAsk decimal.Decimal
	for _, lvl := range b.Bids {
		p, s, ok := lvl.parse()
		if !ok {
			continue
		}
		book.Bids = append(book.Bids, domain.PriceLevel{Price: p.InexactFloat64(), Size: s.InexactFloat64()})
		if p.GreaterThan(bestBid) {
			bestBid = p
		}
	}
	for _, lvl := range b.Asks {
		p, s, ok := lvl.parse()
		if !ok {
			continue
		}
		book.Asks = append(book.Asks, domain.PriceLevel{Price: p.InexactFloat64(), Size: s.InexactFloat64()})
		if bestAsk.IsZero() || p.LessThan(bestAsk) {
			bestAsk = p
		}
	}
	book.BestBid = bestBid.InexactFloat64()
	book.BestAsk = bestAsk.InexactFloat64()

	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms)
	} else if t, ok := parseTime(b.Timestamp); ok {
		book.Timestamp = t
	} else {
		book.Timestamp = time.Now()
	}
	return book
}

// askSizeAt returns the total size resting at price on the ask side.
func askSizeAt(book domain.OrderBook, price float64) float64 {
	var total float64
	for _, lvl := range book.Asks {
		if lvl.Price == price {
			total += lvl.Size
		}
	}
	return total
}

func (l APIPriceLevel) parse() (price, size decimal.Decimal, ok bool) {
	p, err := decimal.NewFromString(l.Price)
	if err != nil || !p.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	s, err := decimal.NewFromString(l.Size)
	if err != nil {
		s = decimal.Zero
	}
	return p, s, true
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
