package service

import (
	"sync"

	"github.com/shopspring/decimal"
)

// WalletService tracks the trading balance. Trades do not debit it; only
// realized PnL from settlement moves it.
type WalletService struct {
	address string

	mu      sync.RWMutex
	balance decimal.Decimal
}

// NewWalletService creates a WalletService with a starting balance.
func NewWalletService(address string, initial float64) *WalletService {
	return &WalletService{
		address: address,
		balance: decimal.NewFromFloat(initial),
	}
}

// Address returns the wallet address, or "" when no key is configured.
func (w *WalletService) Address() string {
	return w.address
}

// Balance returns the current balance in USD.
func (w *WalletService) Balance() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance.InexactFloat64()
}

// ApplyPnL adds realized profit or loss and returns the new balance.
func (w *WalletService) ApplyPnL(pnl float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = w.balance.Add(decimal.NewFromFloat(pnl))
	return w.balance.InexactFloat64()
}
