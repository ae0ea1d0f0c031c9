// Package session owns the market selection state machine: which market is
// active, its loaded handle, and the redirect rule for deprecated listings.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dex_go/internal/cache"
	"dex_go/internal/domain"
	"dex_go/internal/infra/rpc"
	"dex_go/internal/ledger"
	"dex_go/internal/registry"
)

// State of the active market selection.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// AccountFetcher is the slice of the transport the session needs.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, address string) (*rpc.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addresses []string) ([]*rpc.AccountInfo, error)
}

// PrefStore persists the selected market across runs.
type PrefStore interface {
	SetPreference(key, value string) error
	GetPreference(key string) (string, error)
}

// Session is the market selection state machine. Safe for concurrent use.
// Loads that complete after the selection has moved on are dropped.
type Session struct {
	registry *registry.Registry
	cache    *cache.Cache
	fetcher  AccountFetcher
	prefs    PrefStore
	logger   *slog.Logger

	fallbackAddress string
	refreshInterval time.Duration
	notify          func(msg string)

	mu       sync.Mutex
	seq      uint64
	state    State
	info     domain.MarketInfo
	handle   *domain.MarketHandle
	lastErr  error
	redirect sync.Once
}

// Options configure a session.
type Options struct {
	Registry *registry.Registry
	Cache    *cache.Cache
	Fetcher  AccountFetcher
	Prefs    PrefStore // optional
	Logger   *slog.Logger

	// FallbackAddress receives selections that resolve to deprecated
	// markets.
	FallbackAddress string
	// RefreshInterval is the near-static tier for market handle loads.
	RefreshInterval time.Duration
	// Notify receives one informational message the first time a deprecated
	// selection gets redirected. Optional.
	Notify func(msg string)
}

// New creates an idle session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		registry:        opts.Registry,
		cache:           opts.Cache,
		fetcher:         opts.Fetcher,
		prefs:           opts.Prefs,
		logger:          logger.With("module", "session"),
		fallbackAddress: opts.FallbackAddress,
		refreshInterval: opts.RefreshInterval,
		notify:          opts.Notify,
		state:           StateIdle,
	}
}

// Select makes the market at address the active one. Unknown addresses fail
// with ErrMarketNotFound. Deprecated listings redirect to the fallback
// market with a one-time notice. Reselecting the already-active address is
// a no-op.
func (s *Session) Select(ctx context.Context, address string) error {
	info, ok := s.registry.Resolve(address)
	if !ok {
		return fmt.Errorf("select %s: %w", address, domain.ErrMarketNotFound)
	}

	if info.Deprecated && s.fallbackAddress == "" {
		return fmt.Errorf("select %s: %w", info.Name, domain.ErrDeprecatedMarket)
	}
	if info.Deprecated && address != s.fallbackAddress {
		fallback, ok := s.registry.Resolve(s.fallbackAddress)
		if !ok {
			return fmt.Errorf("fallback %s: %w", s.fallbackAddress, domain.ErrMarketNotFound)
		}
		s.redirect.Do(func() {
			if s.notify != nil {
				s.notify(fmt.Sprintf("%s is no longer tradable, switched to %s", info.Name, fallback.Name))
			}
		})
		s.logger.Info("deprecated market redirected",
			slog.String("from", info.Name), slog.String("to", fallback.Name))
		info = fallback
	}

	s.mu.Lock()
	if s.info.Address == info.Address && (s.state == StateReady || s.state == StateLoading) {
		s.mu.Unlock()
		return nil
	}
	s.seq++
	mySeq := s.seq
	prevInfo, prevHandle := s.info, s.handle
	s.state = StateLoading
	s.info = info
	s.lastErr = nil
	s.mu.Unlock()

	handle, err := s.LoadHandle(ctx, info)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != mySeq {
		// Selection moved on while loading; drop this result.
		s.logger.Debug("stale market load dropped", slog.String("market", info.Name))
		return nil
	}
	if err != nil {
		// Remain on the last good market, if any, while the failure is
		// surfaced through the error state.
		s.state = StateError
		s.lastErr = err
		if prevHandle != nil {
			s.info, s.handle = prevInfo, prevHandle
		}
		s.logger.Error("market load failed", slog.String("market", info.Name), slog.Any("error", err))
		return err
	}

	s.state = StateReady
	s.handle = handle
	if s.prefs != nil {
		if perr := s.prefs.SetPreference(domain.PrefSelectedMarket, info.Address); perr != nil {
			s.logger.Warn("failed to persist selected market", slog.Any("error", perr))
		}
	}
	s.logger.Info("market selected", slog.String("market", info.Name), slog.String("address", info.Address))
	return nil
}

// LoadHandle fetches and decodes the market account plus its mints, through
// the cache on the near-static tier. Handles are shared by key with every
// other reader of the same market.
func (s *Session) LoadHandle(ctx context.Context, info domain.MarketInfo) (*domain.MarketHandle, error) {
	key := cache.NewKey("market", info.Address, info.ProgramID)
	return cache.Lookup(ctx, s.cache, key, func(ctx context.Context) (*domain.MarketHandle, error) {
		acc, err := s.fetcher.GetAccountInfo(ctx, info.Address)
		if err != nil {
			return nil, &domain.ConnectivityError{Method: "getAccountInfo", Err: err}
		}
		if acc == nil {
			return nil, fmt.Errorf("market account %s: %w", info.Address, domain.ErrMarketNotFound)
		}
		state, err := ledger.DecodeMarket(acc.Data)
		if err != nil {
			return nil, err
		}
		if state.OwnAddress != info.Address {
			return nil, fmt.Errorf("market account %s now holds %s: %w",
				info.Address, state.OwnAddress, domain.ErrStaleMarket)
		}

		mints, err := s.fetcher.GetMultipleAccounts(ctx, []string{state.BaseMint, state.QuoteMint})
		if err != nil {
			return nil, &domain.ConnectivityError{Method: "getMultipleAccounts", Err: err}
		}
		if len(mints) != 2 || mints[0] == nil || mints[1] == nil {
			return nil, fmt.Errorf("mint accounts missing for market %s", info.Address)
		}
		baseMint, err := ledger.DecodeMint(mints[0].Data)
		if err != nil {
			return nil, err
		}
		quoteMint, err := ledger.DecodeMint(mints[1].Data)
		if err != nil {
			return nil, err
		}

		return &domain.MarketHandle{
			Address:       info.Address,
			ProgramID:     info.ProgramID,
			Name:          info.Name,
			BaseMint:      state.BaseMint,
			QuoteMint:     state.QuoteMint,
			Bids:          state.Bids,
			Asks:          state.Asks,
			EventQueue:    state.EventQueue,
			BaseLotSize:   state.BaseLotSize,
			QuoteLotSize:  state.QuoteLotSize,
			BaseDecimals:  int(baseMint.Decimals),
			QuoteDecimals: int(quoteMint.Decimals),
		}, nil
	}, s.refreshInterval)
}

// Current returns the last successfully loaded handle (nil until one has
// loaded), its catalog entry and the selection state.
func (s *Session) Current() (*domain.MarketHandle, domain.MarketInfo, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.info, s.state
}

// Err returns the load failure when the session is in the error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// InitialAddress picks the market to select on startup: the persisted
// preference when it still resolves, then the configured default name, then
// the first active catalog entry.
func (s *Session) InitialAddress(defaultName string) string {
	if s.prefs != nil {
		if addr, err := s.prefs.GetPreference(domain.PrefSelectedMarket); err == nil && addr != "" {
			if _, ok := s.registry.Resolve(addr); ok {
				return addr
			}
		}
	}
	if defaultName != "" {
		if m, ok := s.registry.ResolveByName(defaultName); ok {
			return m.Address
		}
	}
	if active := s.registry.ActiveMarkets(); len(active) > 0 {
		return active[0].Address
	}
	return ""
}
