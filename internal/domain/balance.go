package domain

import "github.com/shopspring/decimal"

// BalanceView is the per-asset balance row for the active market: wallet
// holdings plus amounts locked in and freed by the open-orders account.
// Recomputed on every read, never persisted.
type BalanceView struct {
	Coin          string           `json:"coin"`
	Wallet        *decimal.Decimal `json:"wallet"`    // spendable wallet balance; nil until loaded
	Orders        *decimal.Decimal `json:"orders"`    // locked in resting orders (total - free)
	Unsettled     *decimal.Decimal `json:"unsettled"` // freed but not yet settled (free)
	MarketAddress string           `json:"market_address"`
	OpenOrders    string           `json:"open_orders,omitempty"` // open-orders account address
}

// PortfolioBalance aggregates open-orders balances for one asset across all
// markets.
type PortfolioBalance struct {
	Free  decimal.Decimal `json:"free"`
	Total decimal.Decimal `json:"total"`
}

// Add accumulates another contribution into the balance.
func (p PortfolioBalance) Add(free, total decimal.Decimal) PortfolioBalance {
	return PortfolioBalance{
		Free:  p.Free.Add(free),
		Total: p.Total.Add(total),
	}
}
