package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"dex_go/internal/cache"
	"dex_go/internal/domain"
	"dex_go/internal/registry"
)

var srmTierThresholds = []struct {
	balance decimal.Decimal
	tier    int
}{
	{decimal.NewFromInt(1_000_000), 5},
	{decimal.NewFromInt(100_000), 4},
	{decimal.NewFromInt(10_000), 3},
	{decimal.NewFromInt(1_000), 2},
	{decimal.NewFromInt(100), 1},
}

// feeTierFromBalances maps discount-token holdings to a fee tier. A single
// MSRM outranks any SRM balance.
func feeTierFromBalances(msrm, srm decimal.Decimal) int {
	if msrm.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return 6
	}
	for _, t := range srmTierThresholds {
		if srm.GreaterThanOrEqual(t.balance) {
			return t.tier
		}
	}
	return 0
}

// GetFeeTier computes the wallet's fee tier from its discount-token
// accounts and persists the backing account so order placement can attach
// it. A wallet with no discount tokens is tier 0 with no key.
func (s *TradingService) GetFeeTier(ctx context.Context) (domain.FeeTier, bool) {
	if !s.wallet.Connected() {
		return domain.FeeTier{}, false
	}
	owner := s.wallet.PublicKey()

	tier, err := cache.Lookup(ctx, s.cache, cache.FeeTierKey(owner), func(ctx context.Context) (domain.FeeTier, error) {
		accounts, err := s.tokenAccounts(ctx, owner)
		if err != nil {
			return domain.FeeTier{}, err
		}

		best := domain.FeeTier{}
		for _, acc := range accounts {
			var msrm, srm decimal.Decimal
			switch acc.EffectiveMint {
			case registry.MSRMMint:
				msrm = domain.ScaleByDecimals(acc.Amount, 0)
			case registry.SRMMint:
				srm = domain.ScaleByDecimals(acc.Amount, 6)
			default:
				continue
			}
			candidate := domain.FeeTier{
				Tier:    feeTierFromBalances(msrm, srm),
				PubKey:  acc.PubKey,
				Mint:    acc.EffectiveMint,
				Balance: decimal.Max(msrm, srm),
			}
			if candidate.Tier > best.Tier || best.PubKey == "" {
				best = candidate
			}
		}

		if best.PubKey != "" && s.prefs != nil {
			if perr := s.prefs.SetPreference(domain.PrefFeeDiscountKey, best.PubKey); perr != nil {
				s.logger.Warn("failed to persist fee discount key", slog.Any("error", perr))
			}
		}
		return best, nil
	}, s.tiers.Slow)
	if err != nil {
		s.logger.Warn("fee tier load failed", slog.Any("error", err))
		return domain.FeeTier{}, false
	}
	return tier, true
}
