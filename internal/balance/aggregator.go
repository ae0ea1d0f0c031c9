// Package balance derives wallet and open-orders balances from decoded
// ledger accounts. Everything here is a pure recomputation per read; missing
// inputs yield nil fields or empty slices, never errors.
package balance

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"dex_go/internal/domain"
	"dex_go/internal/infra/rpc"
	"dex_go/internal/ledger"
	"dex_go/internal/registry"
)

// Transport is the slice of the node client the aggregator needs.
type Transport interface {
	GetAccountInfo(ctx context.Context, address string) (*rpc.AccountInfo, error)
	GetProgramAccounts(ctx context.Context, programID string, filters ...rpc.Filter) ([]rpc.KeyedAccount, error)
}

// UnmigratedAccount is an open-orders account on a retired program
// generation that still holds funds.
type UnmigratedAccount struct {
	Address    string
	MarketName string
	State      ledger.OpenOrdersState
}

// Aggregator computes balances. Safe for concurrent use; it holds no
// mutable state.
type Aggregator struct {
	transport Transport
	tokens    *registry.TokenRegistry
	registry  *registry.Registry
	logger    *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(transport Transport, tokens *registry.TokenRegistry, reg *registry.Registry, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		transport: transport,
		tokens:    tokens,
		registry:  reg,
		logger:    logger.With("module", "balance"),
	}
}

// TokenAccounts enumerates the wallet's token accounts, plus a synthetic
// entry for the native balance carried by the wallet account itself.
func (a *Aggregator) TokenAccounts(ctx context.Context, walletPub string) ([]domain.TokenAccount, error) {
	ownerBytes, err := ledger.DecodeAddress(walletPub)
	if err != nil {
		return nil, err
	}

	raw, err := a.transport.GetProgramAccounts(ctx, domain.TokenProgramID,
		rpc.DataSizeFilter(ledger.TokenAccountSize),
		rpc.MemcmpFilter(ledger.TokenAccountOwnerOffset, ownerBytes),
	)
	if err != nil {
		return nil, &domain.ConnectivityError{Method: "getProgramAccounts", Err: err}
	}

	accounts := make([]domain.TokenAccount, 0, len(raw)+1)
	for _, ka := range raw {
		state, err := ledger.DecodeTokenAccount(ka.Account.Data)
		if err != nil {
			a.logger.Warn("skipping undecodable token account",
				slog.String("pubkey", ka.PubKey), slog.Any("error", err))
			continue
		}
		accounts = append(accounts, domain.TokenAccount{
			PubKey:        ka.PubKey,
			EffectiveMint: state.Mint,
			Amount:        state.Amount,
			Lamports:      ka.Account.Lamports,
		})
	}

	// The wallet account itself stands in for a native token account.
	walletAcc, err := a.transport.GetAccountInfo(ctx, walletPub)
	if err != nil {
		return nil, &domain.ConnectivityError{Method: "getAccountInfo", Err: err}
	}
	if walletAcc != nil {
		accounts = append(accounts, domain.TokenAccount{
			PubKey:        walletPub,
			EffectiveMint: domain.NativeMint,
			Amount:        walletAcc.Lamports,
			Lamports:      walletAcc.Lamports,
			IsNative:      true,
		})
	}
	return accounts, nil
}

// SelectedTokenAccount picks the account to trade from for a mint: the
// explicitly selected pubkey when it matches, otherwise the first account
// holding the mint. Returns nil when none qualifies.
func SelectedTokenAccount(accounts []domain.TokenAccount, mint, selectedPubKey string) *domain.TokenAccount {
	if mint == "" {
		return nil
	}
	for i := range accounts {
		acc := &accounts[i]
		if acc.EffectiveMint != mint {
			continue
		}
		if selectedPubKey != "" && acc.PubKey != selectedPubKey {
			continue
		}
		return acc
	}
	return nil
}

// WalletBalance converts a token account to display units for the given
// market side. Native balances read lamports, everything else the token
// amount.
func WalletBalance(handle *domain.MarketHandle, mint string, acc *domain.TokenAccount) *decimal.Decimal {
	if acc == nil {
		return nil
	}
	var v decimal.Decimal
	if mint == domain.NativeMint {
		v = domain.ScaleByDecimals(acc.Lamports, 9)
	} else if mint == handle.BaseMint {
		v = handle.BaseSplSizeToNumber(acc.Amount)
	} else {
		v = handle.QuoteSplSizeToNumber(acc.Amount)
	}
	return &v
}

// MarketBalances builds the two balance rows for the active market. Markets
// whose base or quote asset cannot be named yield an empty list.
func (a *Aggregator) MarketBalances(
	handle *domain.MarketHandle,
	baseWallet, quoteWallet *decimal.Decimal,
	oo *ledger.OpenOrdersState,
	ooAddress string,
) []domain.BalanceView {
	baseCoin := a.coinForMint(handle.BaseMint, handle.Name, false)
	quoteCoin := a.coinForMint(handle.QuoteMint, handle.Name, true)
	if baseCoin == "UNKNOWN" || quoteCoin == "UNKNOWN" {
		return []domain.BalanceView{}
	}

	// Any existing open-orders account yields both figures; a fully-locked
	// balance (free = 0 right after placing an order) must still show up
	// under orders.
	var baseOrders, baseUnsettled, quoteOrders, quoteUnsettled *decimal.Decimal
	if oo != nil {
		baseLocked := handle.BaseSplSizeToNumber(oo.BaseTokenTotal - oo.BaseTokenFree)
		baseFree := handle.BaseSplSizeToNumber(oo.BaseTokenFree)
		baseOrders, baseUnsettled = &baseLocked, &baseFree

		quoteLocked := handle.QuoteSplSizeToNumber(oo.QuoteTokenTotal - oo.QuoteTokenFree)
		quoteFree := handle.QuoteSplSizeToNumber(oo.QuoteTokenFree)
		quoteOrders, quoteUnsettled = &quoteLocked, &quoteFree
	}

	return []domain.BalanceView{
		{
			Coin:          baseCoin,
			Wallet:        baseWallet,
			Orders:        baseOrders,
			Unsettled:     baseUnsettled,
			MarketAddress: handle.Address,
			OpenOrders:    ooAddress,
		},
		{
			Coin:          quoteCoin,
			Wallet:        quoteWallet,
			Orders:        quoteOrders,
			Unsettled:     quoteUnsettled,
			MarketAddress: handle.Address,
			OpenOrders:    ooAddress,
		},
	}
}

func (a *Aggregator) coinForMint(mint, marketName string, quote bool) string {
	if t, ok := a.tokens.ByMint(mint); ok {
		return t.Symbol
	}
	return registry.CoinFromMarketName(marketName, quote)
}

// OpenOrdersForOwner scans one program generation for the wallet's
// open-orders accounts.
func (a *Aggregator) OpenOrdersForOwner(ctx context.Context, programID, walletPub string) ([]rpc.KeyedAccount, error) {
	ownerBytes, err := ledger.DecodeAddress(walletPub)
	if err != nil {
		return nil, err
	}
	accounts, err := a.transport.GetProgramAccounts(ctx, programID,
		rpc.DataSizeFilter(ledger.OpenOrdersAccountSize),
		rpc.MemcmpFilter(ledger.OpenOrdersOwnerOffset, ownerBytes),
	)
	if err != nil {
		return nil, &domain.ConnectivityError{Method: "getProgramAccounts", Err: err}
	}
	return accounts, nil
}

// PortfolioOpenOrdersBalances aggregates open-orders balances per mint
// across every catalog market. Program ids are deduplicated before
// scanning; accounts on markets without a loaded handle are skipped.
func (a *Aggregator) PortfolioOpenOrdersBalances(
	ctx context.Context,
	walletPub string,
	handles map[string]*domain.MarketHandle, // by market address
) (map[string]domain.PortfolioBalance, error) {
	seen := make(map[string]bool)
	var programIDs []string
	for _, m := range a.registry.ListMarkets() {
		if !seen[m.ProgramID] {
			seen[m.ProgramID] = true
			programIDs = append(programIDs, m.ProgramID)
		}
	}

	out := make(map[string]domain.PortfolioBalance)
	for _, programID := range programIDs {
		accounts, err := a.OpenOrdersForOwner(ctx, programID, walletPub)
		if err != nil {
			return nil, err
		}
		for _, ka := range accounts {
			state, err := ledger.DecodeOpenOrders(ka.Account.Data)
			if err != nil {
				continue
			}
			handle, ok := handles[state.Market]
			if !ok {
				continue
			}
			out[handle.BaseMint] = out[handle.BaseMint].Add(
				handle.BaseSplSizeToNumber(state.BaseTokenFree),
				handle.BaseSplSizeToNumber(state.BaseTokenTotal),
			)
			out[handle.QuoteMint] = out[handle.QuoteMint].Add(
				handle.QuoteSplSizeToNumber(state.QuoteTokenFree),
				handle.QuoteSplSizeToNumber(state.QuoteTokenTotal),
			)
		}
	}
	return out, nil
}

// WalletBalancesByMint sums the wallet's token accounts per mint in display
// units. decimalsOf resolves mint precision; unknown mints count as zero
// decimals.
func WalletBalancesByMint(accounts []domain.TokenAccount, decimalsOf func(mint string) int) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, acc := range accounts {
		var amount decimal.Decimal
		if acc.IsNative {
			amount = domain.ScaleByDecimals(acc.Lamports, 9)
		} else {
			amount = domain.ScaleByDecimals(acc.Amount, decimalsOf(acc.EffectiveMint))
		}
		out[acc.EffectiveMint] = out[acc.EffectiveMint].Add(amount)
	}
	return out
}

// UnmigratedOpenOrders finds open-orders accounts on retired program
// generations that still hold funds and need settling.
func (a *Aggregator) UnmigratedOpenOrders(ctx context.Context, walletPub string) ([]UnmigratedAccount, error) {
	var out []UnmigratedAccount
	for _, programID := range a.registry.DeprecatedProgramIDs() {
		accounts, err := a.OpenOrdersForOwner(ctx, programID, walletPub)
		if err != nil {
			return nil, err
		}
		for _, ka := range accounts {
			state, err := ledger.DecodeOpenOrders(ka.Account.Data)
			if err != nil {
				continue
			}
			if state.BaseTokenTotal == 0 && state.QuoteTokenTotal == 0 {
				continue
			}
			name := ""
			if m, ok := a.registry.Resolve(state.Market); ok {
				name = m.Name
			}
			out = append(out, UnmigratedAccount{
				Address:    ka.PubKey,
				MarketName: name,
				State:      *state,
			})
		}
	}
	return out, nil
}
