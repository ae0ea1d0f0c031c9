// Package service exposes the read hooks of the trading core. Every hook
// returns (value, loaded): loaded is false while data is missing or a load
// failed, and the zero value stands in. Hooks go through the keyed cache on
// tiered refresh intervals, so repeated reads are cheap and concurrent
// readers share one fetch.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dex_go/internal/balance"
	"dex_go/internal/book"
	"dex_go/internal/cache"
	"dex_go/internal/domain"
	"dex_go/internal/infra/rpc"
	"dex_go/internal/ledger"
	"dex_go/internal/registry"
	"dex_go/internal/session"
	"dex_go/internal/wallet"
)

// Transport is the node client surface the service reads through.
type Transport interface {
	GetAccountInfo(ctx context.Context, address string) (*rpc.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.AccountInfo, error)
	GetProgramAccounts(ctx context.Context, programID string, filters ...rpc.Filter) ([]rpc.KeyedAccount, error)
}

// AccountStream serves the latest pushed bytes for subscribed accounts.
type AccountStream interface {
	GetLatest(address string) []byte
}

// RefreshTiers groups the cache refresh intervals by volatility.
type RefreshTiers struct {
	VerySlow time.Duration // market handles, catalog-level data
	Slow     time.Duration // books, fills, token accounts
	Fast     time.Duration // open orders while trading
}

// TradingService serves all read hooks for the active market and wallet.
type TradingService struct {
	transport Transport
	cache     *cache.Cache
	session   *session.Session
	wallet    wallet.Wallet
	agg       *balance.Aggregator
	tokens    *registry.TokenRegistry
	registry  *registry.Registry
	prefs     session.PrefStore // optional
	streams   AccountStream     // optional
	tiers     RefreshTiers
	logger    *slog.Logger
}

// NewTradingService wires the read side together.
func NewTradingService(
	transport Transport,
	c *cache.Cache,
	sess *session.Session,
	w wallet.Wallet,
	agg *balance.Aggregator,
	tokens *registry.TokenRegistry,
	reg *registry.Registry,
	prefs session.PrefStore,
	tiers RefreshTiers,
	logger *slog.Logger,
) *TradingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingService{
		transport: transport,
		cache:     c,
		session:   sess,
		wallet:    w,
		agg:       agg,
		tokens:    tokens,
		registry:  reg,
		prefs:     prefs,
		tiers:     tiers,
		logger:    logger.With("module", "trading_service"),
	}
}

// AttachStreams installs the push-update source. Book and fills loads read
// the pushed bytes when present and only fall back to the transport for
// accounts with no push yet. Call before the first read.
func (s *TradingService) AttachStreams(streams AccountStream) {
	s.streams = streams
}

func (s *TradingService) activeHandle() *domain.MarketHandle {
	handle, _, state := s.session.Current()
	if state != session.StateReady {
		return nil
	}
	return handle
}

// orderBookView loads and caches the decoded book for the active market.
func (s *TradingService) orderBookView(ctx context.Context, handle *domain.MarketHandle) (*book.View, error) {
	key := cache.OrderBookKey(handle.Address)
	return cache.Lookup(ctx, s.cache, key, func(ctx context.Context) (*book.View, error) {
		if s.streams != nil {
			bidsData := s.streams.GetLatest(handle.Bids)
			asksData := s.streams.GetLatest(handle.Asks)
			if bidsData != nil && asksData != nil {
				return book.NewView(handle, bidsData, asksData)
			}
		}
		accounts, err := s.transport.GetMultipleAccounts(ctx, []string{handle.Bids, handle.Asks})
		if err != nil {
			return nil, &domain.ConnectivityError{Method: "getMultipleAccounts", Err: err}
		}
		var bidsData, asksData []byte
		if len(accounts) == 2 {
			if accounts[0] != nil {
				bidsData = accounts[0].Data
			}
			if accounts[1] != nil {
				asksData = accounts[1].Data
			}
		}
		return book.NewView(handle, bidsData, asksData)
	}, s.tiers.Slow)
}

// GetOrderBook returns a depth-limited snapshot of the active market's book.
func (s *TradingService) GetOrderBook(ctx context.Context, depth int) (book.Snapshot, bool) {
	handle := s.activeHandle()
	if handle == nil {
		return book.Snapshot{}, false
	}
	view, err := s.orderBookView(ctx, handle)
	if err != nil {
		s.logger.Warn("order book load failed", slog.Any("error", err))
		return book.Snapshot{}, false
	}
	return view.Snapshot(depth), true
}

// GetFills returns the market's recent trades, newest first: maker events
// from the event queue with the side flipped to the taker's view.
func (s *TradingService) GetFills(ctx context.Context) ([]domain.Fill, bool) {
	handle := s.activeHandle()
	if handle == nil {
		return nil, false
	}
	key := cache.FillsKey(handle.Address)
	fills, err := cache.Lookup(ctx, s.cache, key, func(ctx context.Context) ([]domain.Fill, error) {
		var data []byte
		if s.streams != nil {
			data = s.streams.GetLatest(handle.EventQueue)
		}
		if data == nil {
			acc, err := s.transport.GetAccountInfo(ctx, handle.EventQueue)
			if err != nil {
				return nil, &domain.ConnectivityError{Method: "getAccountInfo", Err: err}
			}
			if acc == nil {
				return nil, fmt.Errorf("event queue %s missing", handle.EventQueue)
			}
			data = acc.Data
		}
		events, err := ledger.DecodeFillEvents(data)
		if err != nil {
			return nil, err
		}

		out := make([]domain.Fill, 0, len(events))
		for _, e := range events {
			if !e.Maker {
				continue
			}
			out = append(out, domain.Fill{
				OrderID:    e.OrderID,
				Side:       e.Side.Opposite(),
				Price:      handle.PriceLotsToNumber(e.PriceLots),
				Size:       handle.BaseSizeLotsToNumber(e.SizeLots),
				Maker:      true,
				OpenOrders: e.OpenOrders,
				Time:       e.Timestamp,
				MarketName: handle.Name,
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Time > out[j].Time })
		return out, nil
	}, s.tiers.Slow)
	if err != nil {
		s.logger.Warn("fills load failed", slog.Any("error", err))
		return nil, false
	}
	return fills, true
}

// GetMyFills filters the market's fills down to the wallet's own, matched
// through its open-orders account keys.
func (s *TradingService) GetMyFills(ctx context.Context) ([]domain.Fill, bool) {
	handle := s.activeHandle()
	if handle == nil || !s.wallet.Connected() {
		return nil, false
	}
	fills, ok := s.GetFills(ctx)
	if !ok {
		return nil, false
	}
	accounts, err := s.openOrdersAccounts(ctx, handle, s.wallet.PublicKey())
	if err != nil {
		s.logger.Warn("open orders load failed", slog.Any("error", err))
		return nil, false
	}
	mine := make(map[string]bool, len(accounts))
	for _, ka := range accounts {
		mine[ka.PubKey] = true
	}
	out := make([]domain.Fill, 0, len(fills))
	for _, f := range fills {
		if mine[f.OpenOrders] {
			out = append(out, f)
		}
	}
	return out, true
}

// GetMarkPrice derives the reference price from the book and last trade.
// The bool reports whether the inputs were loaded; a nil price with true
// means the book cannot support a mark price yet.
func (s *TradingService) GetMarkPrice(ctx context.Context) (*decimal.Decimal, bool) {
	handle := s.activeHandle()
	if handle == nil {
		return nil, false
	}
	view, err := s.orderBookView(ctx, handle)
	if err != nil {
		return nil, false
	}
	var last *decimal.Decimal
	if fills, ok := s.GetFills(ctx); ok && len(fills) > 0 {
		last = &fills[0].Price
	}
	return view.MarkPrice(last), true
}

// openOrdersAccounts loads the wallet's open-orders accounts on the active
// market, keyed per (market, wallet) and refreshed on the fast tier.
func (s *TradingService) openOrdersAccounts(ctx context.Context, handle *domain.MarketHandle, owner string) ([]rpc.KeyedAccount, error) {
	key := cache.OpenOrdersKey(handle.Address, owner)
	return cache.Lookup(ctx, s.cache, key, func(ctx context.Context) ([]rpc.KeyedAccount, error) {
		ownerBytes, err := ledger.DecodeAddress(owner)
		if err != nil {
			return nil, err
		}
		marketBytes, err := ledger.DecodeAddress(handle.Address)
		if err != nil {
			return nil, err
		}
		accounts, err := s.transport.GetProgramAccounts(ctx, handle.ProgramID,
			rpc.DataSizeFilter(ledger.OpenOrdersAccountSize),
			rpc.MemcmpFilter(ledger.OpenOrdersMarketOffset, marketBytes),
			rpc.MemcmpFilter(ledger.OpenOrdersOwnerOffset, ownerBytes),
		)
		if err != nil {
			return nil, &domain.ConnectivityError{Method: "getProgramAccounts", Err: err}
		}
		return accounts, nil
	}, s.tiers.Fast)
}

// GetOpenOrders recomputes the wallet's resting orders by intersecting the
// book with the wallet's open-orders account keys.
func (s *TradingService) GetOpenOrders(ctx context.Context) ([]domain.OpenOrderRecord, bool) {
	handle := s.activeHandle()
	if handle == nil || !s.wallet.Connected() {
		return nil, false
	}
	owner := s.wallet.PublicKey()

	accounts, err := s.openOrdersAccounts(ctx, handle, owner)
	if err != nil {
		s.logger.Warn("open orders load failed", slog.Any("error", err))
		return nil, false
	}
	view, err := s.orderBookView(ctx, handle)
	if err != nil {
		return nil, false
	}

	owners := make(map[string]bool, len(accounts))
	for _, ka := range accounts {
		owners[ka.PubKey] = true
	}
	records := view.OrdersForOwners(owners, handle.Name)
	if records == nil {
		records = []domain.OpenOrderRecord{}
	}
	return records, true
}

// tokenAccounts loads and caches the wallet's token accounts.
func (s *TradingService) tokenAccounts(ctx context.Context, owner string) ([]domain.TokenAccount, error) {
	key := cache.TokenAccountsKey(owner)
	return cache.Lookup(ctx, s.cache, key, func(ctx context.Context) ([]domain.TokenAccount, error) {
		return s.agg.TokenAccounts(ctx, owner)
	}, s.tiers.Slow)
}

// GetTokenAccounts returns the wallet's token accounts.
func (s *TradingService) GetTokenAccounts(ctx context.Context) ([]domain.TokenAccount, bool) {
	if !s.wallet.Connected() {
		return nil, false
	}
	accounts, err := s.tokenAccounts(ctx, s.wallet.PublicKey())
	if err != nil {
		s.logger.Warn("token accounts load failed", slog.Any("error", err))
		return nil, false
	}
	return accounts, true
}

// selectedAccountOverrides reads the persisted mint -> token account
// choices. Absent or malformed preferences yield no overrides.
func (s *TradingService) selectedAccountOverrides() map[string]string {
	if s.prefs == nil {
		return nil
	}
	raw, err := s.prefs.GetPreference(domain.PrefTokenAccountOverrides)
	if err != nil || raw == "" {
		return nil
	}
	var overrides map[string]string
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		s.logger.Warn("malformed token account overrides", slog.Any("error", err))
		return nil
	}
	return overrides
}

// PayerAccountFor resolves the token account that funds an order on the
// given side of the active market. Returns "" when the wallet holds none.
func (s *TradingService) PayerAccountFor(ctx context.Context, side domain.Side) string {
	handle := s.activeHandle()
	if handle == nil || !s.wallet.Connected() {
		return ""
	}
	accounts, err := s.tokenAccounts(ctx, s.wallet.PublicKey())
	if err != nil {
		return ""
	}
	mint := handle.QuoteMint
	if side == domain.SideSell {
		mint = handle.BaseMint
	}
	overrides := s.selectedAccountOverrides()
	acc := balance.SelectedTokenAccount(accounts, mint, overrides[mint])
	if acc == nil {
		return ""
	}
	return acc.PubKey
}

// GetBalances builds the two balance rows for the active market.
func (s *TradingService) GetBalances(ctx context.Context) ([]domain.BalanceView, bool) {
	handle := s.activeHandle()
	if handle == nil || !s.wallet.Connected() {
		return nil, false
	}
	owner := s.wallet.PublicKey()

	accounts, err := s.tokenAccounts(ctx, owner)
	if err != nil {
		s.logger.Warn("token accounts load failed", slog.Any("error", err))
		return nil, false
	}
	overrides := s.selectedAccountOverrides()
	baseAcc := balance.SelectedTokenAccount(accounts, handle.BaseMint, overrides[handle.BaseMint])
	quoteAcc := balance.SelectedTokenAccount(accounts, handle.QuoteMint, overrides[handle.QuoteMint])
	baseWallet := balance.WalletBalance(handle, handle.BaseMint, baseAcc)
	quoteWallet := balance.WalletBalance(handle, handle.QuoteMint, quoteAcc)

	var ooState *ledger.OpenOrdersState
	var ooAddress string
	if ooAccounts, err := s.openOrdersAccounts(ctx, handle, owner); err == nil && len(ooAccounts) > 0 {
		if state, derr := ledger.DecodeOpenOrders(ooAccounts[0].Account.Data); derr == nil {
			ooState = state
			ooAddress = ooAccounts[0].PubKey
		}
	}

	return s.agg.MarketBalances(handle, baseWallet, quoteWallet, ooState, ooAddress), true
}

// GetUnmigratedAccounts lists open-orders accounts on retired program
// generations that still hold funds.
func (s *TradingService) GetUnmigratedAccounts(ctx context.Context) ([]balance.UnmigratedAccount, bool) {
	if !s.wallet.Connected() {
		return nil, false
	}
	key := cache.NewKey("unmigratedOpenOrders", s.wallet.PublicKey())
	accounts, err := cache.Lookup(ctx, s.cache, key, func(ctx context.Context) ([]balance.UnmigratedAccount, error) {
		return s.agg.UnmigratedOpenOrders(ctx, s.wallet.PublicKey())
	}, s.tiers.Slow)
	if err != nil {
		s.logger.Warn("unmigrated accounts load failed", slog.Any("error", err))
		return nil, false
	}
	return accounts, true
}
