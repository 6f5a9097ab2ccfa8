// Package polymarket is the REST client for the Polymarket CLOB: market
// search, order books, and (simulated) order submission.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/aftermath/internal/crypto"
	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/platform/transport"
)

// ClobClient is the REST client for the Polymarket CLOB API.
type ClobClient struct {
	baseURL string
	http    *transport.Client
	signer  *crypto.Signer
	now     func() time.Time
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer may be nil, in which case submitted orders carry no signature.
func NewClobClient(baseURL, apiKey string, opts transport.Options, signer *crypto.Signer) *ClobClient {
	if apiKey != "" {
		headers := make(map[string]string, len(opts.Headers)+1)
		for k, v := range opts.Headers {
			headers[k] = v
		}
		headers["POLY_API_KEY"] = apiKey
		opts.Headers = headers
	}
	return &ClobClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    transport.New(opts),
		signer:  signer,
		now:     time.Now,
	}
}

// SearchMarkets returns markets matching a free-text query. The first word
// of the query is taken as the event identifier.
func (c *ClobClient) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("query", query)

	body, err := c.http.Get(ctx, c.baseURL+"/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: search markets: %w", err)
	}

	apiMarkets, err := decodeMarkets(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode markets: %w", err)
	}

	eventID := ""
	if fields := strings.Fields(query); len(fields) > 0 {
		eventID = strings.ToUpper(fields[0])
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		m := apiMarkets[i].ToDomainMarket(eventID)
		if m.ID == "" {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// GetOrderBook returns the book for an outcome token. side selects the
// book side parameter: BUY for Yes, SELL for No.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string, side domain.Side) (domain.OrderBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("side", bookSide(side))

	body, err := c.http.Get(ctx, c.baseURL+"/book?"+params.Encode())
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w: %v", domain.ErrMalformed, err)
	}
	return book.ToDomainOrderBook(tokenID), nil
}

// BestAsk returns the lowest ask for the side's outcome token.
func (c *ClobClient) BestAsk(ctx context.Context, market domain.Market, side domain.Side) (domain.Quote, error) {
	tokenID := market.TokenFor(side)
	book, err := c.GetOrderBook(ctx, tokenID, side)
	if err != nil {
		return domain.Quote{}, err
	}
	if len(book.Asks) == 0 || book.BestAsk <= 0 {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: empty book %s: %w", tokenID, domain.ErrNotFound)
	}
	return domain.Quote{
		MarketID:  market.ID,
		TokenID:   tokenID,
		Side:      side,
		Price:     book.BestAsk,
		Size:      askSizeAt(book, book.BestAsk),
		Timestamp: book.Timestamp,
	}, nil
}

// GetMarketResolution fetches a market by ID and reports whether it has
// closed and which outcome token won.
func (c *ClobClient) GetMarketResolution(ctx context.Context, marketID string) (domain.MarketResolution, error) {
	body, err := c.http.Get(ctx, c.baseURL+"/markets/"+url.PathEscape(marketID))
	if err != nil {
		return domain.MarketResolution{}, fmt.Errorf("polymarket/clob: get market %s: %w", marketID, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.MarketResolution{}, fmt.Errorf("polymarket/clob: decode market: %w: %v", domain.ErrMalformed, err)
	}

	res := domain.MarketResolution{Closed: bool(m.Closed)}
	for _, t := range m.Tokens {
		if t.Winner {
			res.WinningToken = t.TokenID
			break
		}
	}
	return res, nil
}

// SubmitOrder acknowledges an order without broadcasting it. When a signer
// is configured the wallet address and EIP-712 signature are attached.
func (c *ClobClient) SubmitOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeOrder, error) {
	if err := ctx.Err(); err != nil {
		return order, err
	}

	if c.signer != nil {
		payload := c.signer.PayloadFor(order, c.now().UnixNano())
		sig, err := c.signer.SignOrder(payload)
		if err != nil {
			return order, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
		}
		order.Wallet = c.signer.Address().Hex()
		order.Signature = sig
	}

	now := c.now()
	order.Status = domain.TradeStatusExecuted
	order.ExecutedAt = &now
	return order, nil
}

// decodeMarkets accepts either a bare JSON array or a {"data": [...]} page.
func decodeMarkets(body []byte) ([]APIMarket, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []APIMarket
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
		}
		return list, nil
	}

	var page APIMarketsPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return page.Data, nil
}

func bookSide(side domain.Side) string {
	if side == domain.SideNo {
		return "SELL"
	}
	return "BUY"
}
