package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// MarketInfo is an immutable catalog entry for a listed market.
// Entries come from the built-in catalog or from user-added custom markets;
// they are never mutated, only superseded by selecting a different address.
type MarketInfo struct {
	Name       string `json:"name"` // "BASE/QUOTE"
	Address    string `json:"address"`
	ProgramID  string `json:"program_id"`
	Deprecated bool   `json:"deprecated"`
	// Labels for assets that are not in the token registry. Only set on
	// custom markets; rendered with a trailing '*' by consumers.
	BaseLabel  string `json:"base_label,omitempty"`
	QuoteLabel string `json:"quote_label,omitempty"`
}

// CustomMarketInfo is a user-added market, persisted locally.
// Custom markets are always treated as non-deprecated.
type CustomMarketInfo struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	ProgramID  string `json:"program_id"`
	BaseLabel  string `json:"base_label,omitempty"`
	QuoteLabel string `json:"quote_label,omitempty"`
}

// MarketInfo converts a custom entry to a catalog entry.
func (c CustomMarketInfo) MarketInfo() MarketInfo {
	return MarketInfo{
		Name:       c.Name,
		Address:    c.Address,
		ProgramID:  c.ProgramID,
		Deprecated: false,
		BaseLabel:  c.BaseLabel,
		QuoteLabel: c.QuoteLabel,
	}
}

// MarketHandle is the loaded, decoded representation of one market.
// It is created by an async load keyed by (address, programID), owned
// exclusively by the session, and replaced rather than mutated.
type MarketHandle struct {
	Address   string
	ProgramID string
	Name      string

	BaseMint  string
	QuoteMint string

	Bids       string
	Asks       string
	EventQueue string

	BaseLotSize  uint64
	QuoteLotSize uint64

	BaseDecimals  int
	QuoteDecimals int
}

func pow10(n int) decimal.Decimal {
	return decimal.New(1, int32(n))
}

// TickSize returns the price increment of the market in quote units.
func (h *MarketHandle) TickSize() decimal.Decimal {
	return h.PriceLotsToNumber(1)
}

// MinOrderSize returns the smallest tradable size in base units.
func (h *MarketHandle) MinOrderSize() decimal.Decimal {
	return h.BaseSizeLotsToNumber(1)
}

// TickSizeDecimals returns the number of decimal places of the tick size,
// used to round derived prices to the market's precision.
func (h *MarketHandle) TickSizeDecimals() int32 {
	tick := h.TickSize()
	if exp := tick.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// PriceLotsToNumber converts a price expressed in price lots to quote units
// per base unit.
func (h *MarketHandle) PriceLotsToNumber(lots uint64) decimal.Decimal {
	num := decimal.NewFromUint64(lots).
		Mul(decimal.NewFromUint64(h.QuoteLotSize)).
		Mul(pow10(h.BaseDecimals))
	den := decimal.NewFromUint64(h.BaseLotSize).Mul(pow10(h.QuoteDecimals))
	return num.Div(den)
}

// PriceNumberToLots converts a quote-unit price to price lots, rounding down.
func (h *MarketHandle) PriceNumberToLots(price decimal.Decimal) uint64 {
	num := price.Mul(pow10(h.QuoteDecimals)).Mul(decimal.NewFromUint64(h.BaseLotSize))
	den := pow10(h.BaseDecimals).Mul(decimal.NewFromUint64(h.QuoteLotSize))
	v := num.Div(den).IntPart()
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// BaseSizeLotsToNumber converts a size in base lots to base units.
func (h *MarketHandle) BaseSizeLotsToNumber(lots uint64) decimal.Decimal {
	return decimal.NewFromUint64(lots).
		Mul(decimal.NewFromUint64(h.BaseLotSize)).
		Div(pow10(h.BaseDecimals))
}

// BaseSizeNumberToLots converts a base-unit size to base lots, rounding down.
func (h *MarketHandle) BaseSizeNumberToLots(size decimal.Decimal) uint64 {
	v := size.Mul(pow10(h.BaseDecimals)).
		Div(decimal.NewFromUint64(h.BaseLotSize)).IntPart()
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// BaseSplSizeToNumber converts a raw base token amount to base units.
func (h *MarketHandle) BaseSplSizeToNumber(raw uint64) decimal.Decimal {
	return ScaleByDecimals(raw, h.BaseDecimals)
}

// QuoteSplSizeToNumber converts a raw quote token amount to quote units.
func (h *MarketHandle) QuoteSplSizeToNumber(raw uint64) decimal.Decimal {
	return ScaleByDecimals(raw, h.QuoteDecimals)
}

// ScaleByDecimals converts a raw on-chain amount to a display amount using
// the mint's decimal precision.
func ScaleByDecimals(raw uint64, decimals int) decimal.Decimal {
	if decimals < 0 || decimals > math.MaxInt32 {
		decimals = 0
	}
	return decimal.NewFromUint64(raw).Div(pow10(decimals))
}
