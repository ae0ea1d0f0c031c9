package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller keeps the hot read paths warm by re-invoking them on a ticker, so
// stale cache entries revalidate in the background instead of on a user's
// read. Stop cancels the loop and waits for it.
type Poller struct {
	service  *TradingService
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller creates a poller over the service's hot reads.
func NewPoller(service *TradingService, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		service:  service,
		interval: interval,
		logger:   logger.With("module", "poller"),
	}
}

// Start begins polling.
func (p *Poller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	// Warm immediately on start.
	p.tick(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("poller panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("polling stopped")
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
	return nil
}

func (p *Poller) tick(ctx context.Context) {
	p.service.GetOrderBook(ctx, 0)
	p.service.GetFills(ctx)
	if p.service.wallet.Connected() {
		p.service.GetOpenOrders(ctx)
		p.service.GetTokenAccounts(ctx)
		p.service.GetFeeTier(ctx)
	}
}

// Stop cancels polling and waits for the loop to exit. In-flight loads are
// allowed to finish; their results land in the cache as usual.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
}
