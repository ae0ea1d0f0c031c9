package domain

import "github.com/shopspring/decimal"

// Side of the book an order rests on.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is a tagged variant; exactly one applies to an order.
// Modeled as a single value rather than three toggles so that two flags
// can never be true at once.
type OrderType string

const (
	OrderTypeLimit    OrderType = "limit"
	OrderTypePostOnly OrderType = "postOnly"
	OrderTypeIOC      OrderType = "ioc"
)

// Valid reports whether t is one of the three known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeLimit, OrderTypePostOnly, OrderTypeIOC:
		return true
	}
	return false
}

// OpenOrderRecord is one of the wallet's resting orders, recomputed per read
// by intersecting book entries with the wallet's open-orders account keys.
type OpenOrderRecord struct {
	OrderID       string          `json:"order_id"`
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	MarketAddress string          `json:"market_address"`
	MarketName    string          `json:"market_name"`
	OpenOrders    string          `json:"open_orders"`
}

// Fill is an executed trade observed from the market's event queue.
// The core never computes fills; it only decodes them.
type Fill struct {
	OrderID    string          `json:"order_id"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Maker      bool            `json:"maker"`
	OpenOrders string          `json:"open_orders"`
	Time       int64           `json:"time"` // unix seconds
	MarketName string          `json:"market_name,omitempty"`
}

// FeeTier describes the wallet's trading fee tier for the active market.
type FeeTier struct {
	Tier    int             `json:"tier"`
	PubKey  string          `json:"pubkey"`  // fee discount key account
	Mint    string          `json:"mint"`    // discount-eligible mint held
	Balance decimal.Decimal `json:"balance"` // balance backing the tier
}
