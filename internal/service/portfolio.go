package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"dex_go/internal/balance"
	"dex_go/internal/domain"
)

// GetPortfolioBalances aggregates open-orders balances per mint across
// every catalog market. Markets whose handles fail to load are skipped so
// one broken listing cannot hide the rest of the portfolio.
func (s *TradingService) GetPortfolioBalances(ctx context.Context) (map[string]domain.PortfolioBalance, bool) {
	if !s.wallet.Connected() {
		return nil, false
	}

	handles := make(map[string]*domain.MarketHandle)
	for _, info := range s.registry.ListMarkets() {
		handle, err := s.session.LoadHandle(ctx, info)
		if err != nil {
			s.logger.Debug("skipping market in portfolio scan",
				slog.String("market", info.Name), slog.Any("error", err))
			continue
		}
		handles[info.Address] = handle
	}

	balances, err := s.agg.PortfolioOpenOrdersBalances(ctx, s.wallet.PublicKey(), handles)
	if err != nil {
		s.logger.Warn("portfolio scan failed", slog.Any("error", err))
		return nil, false
	}
	return balances, true
}

// GetWalletBalancesByMint sums the wallet's holdings per mint in display
// units, using catalog decimals for known mints.
func (s *TradingService) GetWalletBalancesByMint(ctx context.Context) (map[string]decimal.Decimal, bool) {
	accounts, ok := s.GetTokenAccounts(ctx)
	if !ok {
		return nil, false
	}
	return balance.WalletBalancesByMint(accounts, func(mint string) int {
		if t, ok := s.tokens.ByMint(mint); ok {
			return t.Decimals
		}
		return 0
	}), true
}
