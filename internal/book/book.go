// Package book builds L2 order book views from decoded book accounts and
// derives prices from them. Derivations return nil or an error for missing
// depth; they never invent liquidity.
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"dex_go/internal/domain"
	"dex_go/internal/ledger"
)

// Level is one aggregated price level.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Snapshot is a depth-limited view of both sides, best-first.
type Snapshot struct {
	MarketAddress string  `json:"market_address"`
	Bids          []Level `json:"bids"`
	Asks          []Level `json:"asks"`
}

// View is an immutable order book for one market. Build a new one per
// account update; never mutate.
type View struct {
	handle *domain.MarketHandle

	bidOrders []ledger.BookOrder // price-sorted, best (highest) first
	askOrders []ledger.BookOrder // price-sorted, best (lowest) first
	bids      []Level
	asks      []Level
}

// NewView decodes raw bids and asks account bytes into a view. Either side
// may be nil, yielding an empty side.
func NewView(handle *domain.MarketHandle, bidsData, asksData []byte) (*View, error) {
	v := &View{handle: handle}

	if bidsData != nil {
		state, err := ledger.DecodeBook(bidsData)
		if err != nil {
			return nil, err
		}
		v.bidOrders = sortOrders(state.Orders, true)
	}
	if asksData != nil {
		state, err := ledger.DecodeBook(asksData)
		if err != nil {
			return nil, err
		}
		v.askOrders = sortOrders(state.Orders, false)
	}

	v.bids = aggregate(handle, v.bidOrders)
	v.asks = aggregate(handle, v.askOrders)
	return v, nil
}

func sortOrders(orders []ledger.BookOrder, descending bool) []ledger.BookOrder {
	out := make([]ledger.BookOrder, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].PriceLots > out[j].PriceLots
		}
		return out[i].PriceLots < out[j].PriceLots
	})
	return out
}

func aggregate(handle *domain.MarketHandle, orders []ledger.BookOrder) []Level {
	levels := make([]Level, 0, len(orders))
	for _, o := range orders {
		price := handle.PriceLotsToNumber(o.PriceLots)
		size := handle.BaseSizeLotsToNumber(o.SizeLots)
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(price) {
			levels[n-1].Size = levels[n-1].Size.Add(size)
			continue
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels
}

// Snapshot returns up to depth levels per side. depth <= 0 means all.
func (v *View) Snapshot(depth int) Snapshot {
	clip := func(levels []Level) []Level {
		if depth > 0 && len(levels) > depth {
			levels = levels[:depth]
		}
		out := make([]Level, len(levels))
		copy(out, levels)
		return out
	}
	return Snapshot{
		MarketAddress: v.handle.Address,
		Bids:          clip(v.bids),
		Asks:          clip(v.asks),
	}
}

// BestBid returns the highest bid price.
func (v *View) BestBid() (decimal.Decimal, bool) {
	if len(v.bids) == 0 {
		return decimal.Zero, false
	}
	return v.bids[0].Price, true
}

// BestAsk returns the lowest ask price.
func (v *View) BestAsk() (decimal.Decimal, bool) {
	if len(v.asks) == 0 {
		return decimal.Zero, false
	}
	return v.asks[0].Price, true
}

// MarkPrice derives the market's reference price: the median of best bid,
// best ask and last trade when all three exist, the bid/ask midpoint when
// only the book is populated, nil otherwise.
func (v *View) MarkPrice(lastTrade *decimal.Decimal) *decimal.Decimal {
	bb, hasBid := v.BestBid()
	ba, hasAsk := v.BestAsk()
	if !hasBid || !hasAsk {
		return nil
	}

	if lastTrade == nil {
		mid := bb.Add(ba).Div(decimal.NewFromInt(2))
		return &mid
	}

	three := []decimal.Decimal{bb, ba, *lastTrade}
	sort.Slice(three, func(i, j int) bool { return three[i].LessThan(three[j]) })
	median := three[1]
	return &median
}

// MarketOrderPrice derives a marketable limit price for a market-style
// order. Sells are priced at the tick size so they cross the whole book.
// Buys walk the asks until the quote budget is covered, pad the resulting
// level by 2% capped at 5% over the best ask, and floor to tick precision.
func (v *View) MarketOrderPrice(side domain.Side, cost decimal.Decimal) (decimal.Decimal, error) {
	if side == domain.SideSell {
		return v.handle.TickSize(), nil
	}

	if len(v.asks) == 0 {
		return decimal.Zero, domain.ErrNoLiquidity
	}

	spent := decimal.Zero
	price := decimal.Zero
	for _, level := range v.asks {
		price = level.Price
		costAtLevel := level.Price.Mul(level.Size)
		if spent.Add(costAtLevel).GreaterThan(cost) {
			break
		}
		spent = spent.Add(costAtLevel)
	}

	padded := price.Mul(decimal.NewFromFloat(1.02))
	ceiling := v.asks[0].Price.Mul(decimal.NewFromFloat(1.05))
	send := decimal.Min(padded, ceiling)
	return send.RoundFloor(v.handle.TickSizeDecimals()), nil
}

// ExpectedFillPrice derives the average fill price of sweeping the book
// with the given budget: base units when selling into bids, quote units
// when buying from asks. A partially covered level contributes its price
// weighted by the leftover budget; an underfilled walk averages over what
// the book could absorb.
func (v *View) ExpectedFillPrice(side domain.Side, cost decimal.Decimal) (decimal.Decimal, error) {
	intoBids := side == domain.SideSell
	levels := v.asks
	if intoBids {
		levels = v.bids
	}
	if len(levels) == 0 || !cost.IsPositive() {
		return decimal.Zero, domain.ErrNoLiquidity
	}

	spent := decimal.Zero
	weighted := decimal.Zero
	for _, level := range levels {
		unit := level.Price
		if intoBids {
			unit = decimal.NewFromInt(1)
		}
		costAtLevel := unit.Mul(level.Size)
		if spent.Add(costAtLevel).GreaterThan(cost) {
			weighted = weighted.Add(cost.Sub(spent).Mul(level.Price))
			spent = cost
			break
		}
		weighted = weighted.Add(costAtLevel.Mul(level.Price))
		spent = spent.Add(costAtLevel)
	}

	avg := weighted.Div(decimal.Min(cost, spent))
	return avg.RoundFloor(v.handle.TickSizeDecimals()), nil
}

// OrdersForOwners returns the resting orders whose open-orders account is
// in owners, as display-ready records. Both sides are scanned.
func (v *View) OrdersForOwners(owners map[string]bool, marketName string) []domain.OpenOrderRecord {
	var out []domain.OpenOrderRecord
	collect := func(orders []ledger.BookOrder, side domain.Side) {
		for _, o := range orders {
			if !owners[o.Owner] {
				continue
			}
			out = append(out, domain.OpenOrderRecord{
				OrderID:       o.OrderID,
				Side:          side,
				Price:         v.handle.PriceLotsToNumber(o.PriceLots),
				Size:          v.handle.BaseSizeLotsToNumber(o.SizeLots),
				MarketAddress: v.handle.Address,
				MarketName:    marketName,
				OpenOrders:    o.Owner,
			})
		}
	}
	collect(v.bidOrders, domain.SideBuy)
	collect(v.askOrders, domain.SideSell)
	return out
}
