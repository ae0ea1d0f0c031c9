// Package lifecycle executes order mutations: place, cancel, settle. Every
// call validates local state before touching the transport, surfaces typed
// errors with the transport's message intact, and never retries on its own.
// Successful mutations invalidate the wallet-state caches so the next read
// observes the change.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"dex_go/internal/cache"
	"dex_go/internal/domain"
	"dex_go/internal/infra"
	"dex_go/internal/wallet"
)

// Lifecycle performs order mutations. Safe for concurrent use.
type Lifecycle struct {
	wallet wallet.Wallet
	cache  *cache.Cache
	market func() *domain.MarketHandle
	logger *slog.Logger
}

// New creates a lifecycle. activeMarket returns the currently loaded market
// handle, or nil when no market is ready.
func New(w wallet.Wallet, c *cache.Cache, activeMarket func() *domain.MarketHandle, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		wallet: w,
		cache:  c,
		market: activeMarket,
		logger: logger.With("module", "lifecycle"),
	}
}

// PlaceOrderParams describe a new order.
type PlaceOrderParams struct {
	Side  domain.Side
	Type  domain.OrderType
	Price decimal.Decimal
	Size  decimal.Decimal

	// PayerAccount is the token account funding the order: quote for buys,
	// base for sells.
	PayerAccount string
	// FeeDiscountKey optionally names the fee discount token account.
	FeeDiscountKey string
}

type orderInstruction struct {
	Kind           string `json:"kind"`
	Market         string `json:"market"`
	Owner          string `json:"owner"`
	Side           string `json:"side,omitempty"`
	Type           string `json:"type,omitempty"`
	PriceLots      uint64 `json:"price_lots,omitempty"`
	SizeLots       uint64 `json:"size_lots,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	OpenOrders     string `json:"open_orders,omitempty"`
	Payer          string `json:"payer,omitempty"`
	BaseWallet     string `json:"base_wallet,omitempty"`
	QuoteWallet    string `json:"quote_wallet,omitempty"`
	FeeDiscountKey string `json:"fee_discount_key,omitempty"`
}

// PlaceOrder validates and submits a new order, returning the transaction
// signature. On success the token-accounts and open-orders caches for this
// wallet are invalidated.
func (l *Lifecycle) PlaceOrder(ctx context.Context, p PlaceOrderParams) (string, error) {
	if !l.wallet.Connected() {
		return "", &domain.OrderError{Kind: domain.KindNotConnected, Op: "place", Msg: "wallet not connected", Err: domain.ErrNotConnected}
	}
	handle := l.market()
	if handle == nil {
		return "", &domain.OrderError{Kind: domain.KindMissingMarket, Op: "place", Msg: "no market selected"}
	}
	if p.Side != domain.SideBuy && p.Side != domain.SideSell {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "place", Msg: "invalid side"}
	}
	if !p.Type.Valid() {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "place", Msg: "invalid order type"}
	}
	if !p.Price.IsPositive() {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "place", Msg: "price must be positive"}
	}
	if !p.Size.IsPositive() {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "place", Msg: "size must be positive"}
	}
	if p.Size.LessThan(handle.MinOrderSize()) {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "place", Msg: "size below minimum order size"}
	}
	if !p.Price.Mod(handle.TickSize()).IsZero() {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "place", Msg: "price not a multiple of tick size"}
	}
	if p.PayerAccount == "" {
		return "", &domain.OrderError{Kind: domain.KindMissingAccount, Op: "place", Msg: "no funding account for " + string(p.Side)}
	}

	owner := l.wallet.PublicKey()
	payload, _ := json.Marshal(orderInstruction{
		Kind:           "newOrder",
		Market:         handle.Address,
		Owner:          owner,
		Side:           string(p.Side),
		Type:           string(p.Type),
		PriceLots:      handle.PriceNumberToLots(p.Price),
		SizeLots:       handle.BaseSizeNumberToLots(p.Size),
		Payer:          p.PayerAccount,
		FeeDiscountKey: p.FeeDiscountKey,
	})

	sig, err := l.wallet.SignAndSend(ctx, payload)
	if err != nil {
		// Transport messages surface verbatim; no retry.
		return "", &domain.OrderError{Kind: domain.KindTransportFailure, Op: "place", Msg: "transaction failed", Err: err}
	}

	l.invalidateWalletState(owner, handle.Address)
	infra.GlobalMetrics.RecordOrderPlaced()
	l.logger.Info("order placed",
		slog.String("market", handle.Name),
		slog.String("side", string(p.Side)),
		slog.String("price", p.Price.String()),
		slog.String("size", p.Size.String()),
		slog.String("signature", sig))
	return sig, nil
}

// CancelOrder cancels one resting order.
func (l *Lifecycle) CancelOrder(ctx context.Context, order domain.OpenOrderRecord) (string, error) {
	if !l.wallet.Connected() {
		return "", &domain.OrderError{Kind: domain.KindNotConnected, Op: "cancel", Msg: "wallet not connected", Err: domain.ErrNotConnected}
	}
	handle := l.market()
	if handle == nil {
		return "", &domain.OrderError{Kind: domain.KindMissingMarket, Op: "cancel", Msg: "no market selected"}
	}
	if order.OrderID == "" || order.OpenOrders == "" {
		return "", &domain.OrderError{Kind: domain.KindValidation, Op: "cancel", Msg: "order id and open-orders account required"}
	}

	owner := l.wallet.PublicKey()
	payload, _ := json.Marshal(orderInstruction{
		Kind:       "cancelOrder",
		Market:     handle.Address,
		Owner:      owner,
		Side:       string(order.Side),
		OrderID:    order.OrderID,
		OpenOrders: order.OpenOrders,
	})

	sig, err := l.wallet.SignAndSend(ctx, payload)
	if err != nil {
		return "", &domain.OrderError{Kind: domain.KindTransportFailure, Op: "cancel", Msg: "transaction failed", Err: err}
	}

	l.invalidateWalletState(owner, handle.Address)
	l.logger.Info("order cancelled",
		slog.String("market", handle.Name),
		slog.String("order_id", order.OrderID),
		slog.String("signature", sig))
	return sig, nil
}

// SettleFunds moves freed balances from the open-orders account back to the
// wallet's token accounts.
func (l *Lifecycle) SettleFunds(ctx context.Context, openOrders, baseWallet, quoteWallet string) (string, error) {
	if !l.wallet.Connected() {
		return "", &domain.SettleError{Kind: domain.KindNotConnected, Msg: "wallet not connected", Err: domain.ErrNotConnected}
	}
	handle := l.market()
	if handle == nil {
		return "", &domain.SettleError{Kind: domain.KindMissingMarket, Msg: "no market selected"}
	}
	if openOrders == "" {
		return "", &domain.SettleError{Kind: domain.KindMissingAccount, Msg: "no open-orders account"}
	}
	if baseWallet == "" || quoteWallet == "" {
		return "", &domain.SettleError{Kind: domain.KindMissingAccount, Msg: "missing wallet token account"}
	}

	owner := l.wallet.PublicKey()
	payload, _ := json.Marshal(orderInstruction{
		Kind:        "settleFunds",
		Market:      handle.Address,
		Owner:       owner,
		OpenOrders:  openOrders,
		BaseWallet:  baseWallet,
		QuoteWallet: quoteWallet,
	})

	sig, err := l.wallet.SignAndSend(ctx, payload)
	if err != nil {
		return "", &domain.SettleError{Kind: domain.KindTransportFailure, Msg: "transaction failed", Err: err}
	}

	l.invalidateWalletState(owner, handle.Address)
	l.logger.Info("funds settled",
		slog.String("market", handle.Name),
		slog.String("open_orders", openOrders),
		slog.String("signature", sig))
	return sig, nil
}

// invalidateWalletState drops the cached wallet reads a mutation makes
// stale, so the next read reloads even inside its refresh interval.
func (l *Lifecycle) invalidateWalletState(owner, marketAddress string) {
	l.cache.Invalidate(cache.TokenAccountsKey(owner))
	l.cache.Invalidate(cache.OpenOrdersKey(marketAddress, owner))
}
