package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dex_go/internal/balance"
	"dex_go/internal/cache"
	"dex_go/internal/domain"
	"dex_go/internal/infra"
	"dex_go/internal/infra/rpc"
	"dex_go/internal/infra/storage"
	"dex_go/internal/lifecycle"
	"dex_go/internal/registry"
	"dex_go/internal/service"
	"dex_go/internal/session"
	"dex_go/internal/stream"
	"dex_go/internal/wallet"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.SQLiteStorage
	Downloader *infra.IconDownloader

	Cache    *cache.Cache
	Registry *registry.Registry
	Tokens   *registry.TokenRegistry

	Client  *rpc.Client
	WS      *rpc.WSWorker
	Streams *stream.Store

	Wallet    wallet.Wallet
	Session   *session.Session
	Service   *service.TradingService
	Lifecycle *lifecycle.Lifecycle
	Poller    *service.Poller

	releaseStreams []stream.Unsubscribe
	streamCancel   context.CancelFunc
	streamWG       sync.WaitGroup
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, DB, transport,
// trading core).
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Dex Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewSQLiteStorage()
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Initialize Icon Downloader
	downloader, err := infra.NewIconDownloader()
	if err != nil {
		return err
	}
	b.Downloader = downloader
	slog.Info("✅ Icon downloader ready")

	// 5. Market catalog and token registry
	reg, err := registry.NewRegistry(store, logger)
	if err != nil {
		return err
	}
	b.Registry = reg
	b.Tokens = registry.NewTokenRegistry()

	// 6. Keyed cache, wired into the metrics counters
	b.Cache = cache.New()
	b.Cache.OnHitMiss(
		infra.GlobalMetrics.RecordCacheHit,
		infra.GlobalMetrics.RecordCacheMiss,
	)

	// 7. Node transport: HTTP client plus the websocket worker feeding the
	// account stream store
	b.Client = rpc.NewClient(cfg.RPC.HTTPURL)
	b.WS = rpc.NewWSWorker(cfg.RPC.WSURL, logger)
	b.Streams = stream.NewStore(b.WS, logger)
	b.Streams.OnSubscriptionCount(infra.GlobalMetrics.SetActiveSubscriptions)

	// 8. Wallet. A fresh keypair per run until external signers land.
	w, err := wallet.GenerateWallet(b.Client)
	if err != nil {
		return err
	}
	b.Wallet = w

	// 9. Trading core
	b.Session = session.New(session.Options{
		Registry:        reg,
		Cache:           b.Cache,
		Fetcher:         b.Client,
		Prefs:           store,
		Logger:          logger,
		FallbackAddress: cfg.Market.FallbackAddress,
		RefreshInterval: cfg.VerySlowRefresh(),
		Notify: func(msg string) {
			slog.Info("📢 " + msg)
		},
	})
	agg := balance.NewAggregator(b.Client, b.Tokens, reg, logger)
	b.Service = service.NewTradingService(
		b.Client, b.Cache, b.Session, b.Wallet, agg, b.Tokens, reg, store,
		service.RefreshTiers{
			VerySlow: cfg.VerySlowRefresh(),
			Slow:     cfg.SlowRefresh(),
			Fast:     cfg.FastRefresh(),
		},
		logger,
	)
	b.Service.AttachStreams(b.Streams)
	b.Lifecycle = lifecycle.New(b.Wallet, b.Cache, func() *domain.MarketHandle {
		handle, _, state := b.Session.Current()
		if state != session.StateReady {
			return nil
		}
		return handle
	}, logger)
	b.Poller = service.NewPoller(b.Service, cfg.SlowRefresh(), logger)

	slog.Info("✅ Trading core wired")
	return nil
}

// SelectInitialMarket picks and loads the startup market: the persisted
// selection when it still resolves, then the configured default, then the
// first active catalog entry.
func (b *Bootstrap) SelectInitialMarket(ctx context.Context) error {
	address := b.Session.InitialAddress(b.Config.Market.DefaultName)
	if address == "" {
		return fmt.Errorf("no market available to select")
	}
	if err := b.Session.Select(ctx, address); err != nil {
		return err
	}
	return b.subscribeMarketStreams(ctx)
}

// subscribeMarketStreams opens push channels for the active market's book
// and event queue and drops the matching cache entries whenever a push
// lands, so the next read picks up the streamed bytes. Previous market
// subscriptions are released first.
func (b *Bootstrap) subscribeMarketStreams(ctx context.Context) error {
	b.stopMarketStreams()

	handle, _, state := b.Session.Current()
	if state != session.StateReady {
		return fmt.Errorf("no active market to stream")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	b.streamCancel = cancel

	accounts := []struct {
		address string
		key     cache.Key
	}{
		{handle.Bids, cache.OrderBookKey(handle.Address)},
		{handle.Asks, cache.OrderBookKey(handle.Address)},
		{handle.EventQueue, cache.FillsKey(handle.Address)},
	}
	for _, acc := range accounts {
		release, err := b.Streams.Subscribe(ctx, acc.address)
		if err != nil {
			b.stopMarketStreams()
			return fmt.Errorf("failed to subscribe %s: %w", acc.address, err)
		}
		b.releaseStreams = append(b.releaseStreams, release)

		updates, stop := b.Streams.Watch(acc.address)
		b.streamWG.Add(1)
		go func(key cache.Key, updates <-chan struct{}, stop func()) {
			defer b.streamWG.Done()
			defer stop()
			for {
				select {
				case <-watchCtx.Done():
					return
				case <-updates:
					b.Cache.Invalidate(key)
				}
			}
		}(acc.key, updates, stop)
	}
	slog.Info("✅ Market streams subscribed", slog.String("market", handle.Name))
	return nil
}

// stopMarketStreams tears down the watch goroutines and releases the
// account subscriptions of the previous market.
func (b *Bootstrap) stopMarketStreams() {
	if b.streamCancel != nil {
		b.streamCancel()
		b.streamWG.Wait()
		b.streamCancel = nil
	}
	for _, release := range b.releaseStreams {
		release()
	}
	b.releaseStreams = nil
}

// SyncAssets synchronizes token metadata and icons in the background
// This simulates the "Loading Screen" logic
func (b *Bootstrap) SyncAssets(ctx context.Context) {
	slog.Info("🔄 Starting asset synchronization...")

	existing := make(map[string]domain.TokenAssetRecord)
	if records, err := b.Storage.GetTokenAssets(); err == nil {
		for _, r := range records {
			existing[r.Symbol] = r
		}
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent downloads

	for _, token := range b.Tokens.All() {
		wg.Add(1)
		go func(t domain.TokenInfo) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			asset := &domain.TokenAssetRecord{
				Symbol: t.Symbol,
				Name:   t.Name,
			}
			if prev, ok := existing[t.Symbol]; ok {
				asset.IconPath = prev.IconPath
				asset.LastSyncedAt = prev.LastSyncedAt
			}
			if err := b.Storage.SaveTokenAsset(asset); err != nil {
				slog.Error("Failed to save token asset", slog.String("symbol", t.Symbol), slog.Any("error", err))
			}

			// Download Icon (if missing)
			path, err := b.Downloader.DownloadIcon(t.Symbol)
			if err != nil {
				slog.Warn("Failed to download icon", slog.String("symbol", t.Symbol), slog.Any("error", err))
			} else if path != "" {
				asset.IconPath = path
				asset.LastSyncedAt = time.Now()
				b.Storage.SaveTokenAsset(asset)
			}
		}(token)
	}

	wg.Wait()
	slog.Info("✨ Asset synchronization completed")
}

// Shutdown releases everything Initialize acquired, in reverse order.
func (b *Bootstrap) Shutdown() {
	if b.Poller != nil {
		b.Poller.Stop()
	}
	b.stopMarketStreams()
	if b.WS != nil {
		b.WS.Disconnect()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
}
