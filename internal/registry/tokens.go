package registry

import (
	"strings"

	"dex_go/internal/domain"
)

// Fee-discount mints. Holding either reduces taker fees; the larger
// denomination takes precedence.
const (
	SRMMint  = "SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt"
	MSRMMint = "MSRMcoVyrFxnSgo5uXwone5SKcGhT1KEJMFEkMEWf9L"
)

// knownTokens maps mint address to asset metadata. Decimals here are the
// canonical values; live mint accounts remain authoritative.
var knownTokens = []domain.TokenInfo{
	{Symbol: "SOL", Name: "Wrapped SOL", Mint: domain.NativeMint, Decimals: 9},
	{Symbol: "BTC", Name: "Wrapped Bitcoin", Mint: "9n4nbM75f5Ui33ZbPYXn59EwSgE8CGsHtAeTH5YFeJ9E", Decimals: 6},
	{Symbol: "ETH", Name: "Wrapped Ethereum", Mint: "2FPyTwcZLUg1MDrwsyoP4D6s1tM7hAkHYRjkNb5w6Pxk", Decimals: 6},
	{Symbol: "USDC", Name: "USD Coin", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	{Symbol: "USDT", Name: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	{Symbol: "WUSDT", Name: "Wrapped USDT", Mint: "BQcdHdAQW1hczDbBi9hiegXAR7A98Q9jx3X3iBBBDiq4", Decimals: 6},
	{Symbol: "SRM", Name: "Serum", Mint: SRMMint, Decimals: 6},
	{Symbol: "MSRM", Name: "MegaSerum", Mint: MSRMMint, Decimals: 0},
	{Symbol: "RAY", Name: "Raydium", Mint: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Decimals: 6},
	{Symbol: "FIDA", Name: "Bonfida", Mint: "EchesyfXePKdLtoiZSL8pBe8Myagyy8ZRqsACNCFGnvp", Decimals: 6},
	{Symbol: "OXY", Name: "Oxygen", Mint: "z3dn17yLaGMKffVogeFHQ9zWVcXgqgf3PQnDsNs2g6M", Decimals: 6},
	{Symbol: "MAPS", Name: "Maps", Mint: "MAPS41MDahZ9QdKXhVa4dWB9RuyfV4XqhyAZ8XcYepb", Decimals: 6},
	{Symbol: "KIN", Name: "Kin", Mint: "kinXdEcpDQeHPEuQnqmUgtYykqKGVFq6CeVX5iAHJq6", Decimals: 5},
	// Redenominated; the original symbol lives on under the x prefix.
	{Symbol: "xCOPE", Name: "xCOPE", Mint: "3K6rftdAaQYMPunrtNRHgnK2UAtjm2JwyT2oCiTDouYE", Decimals: 0},
	{Symbol: "COPE", Name: "COPE", Mint: "8HGyAAB1yoM1ttS7pXjHMa3dukTFGQggnFFH3hJZgzQh", Decimals: 6},
	{Symbol: "YFI", Name: "Wrapped YFI", Mint: "3JSf5tPeuscJGtaCp5giEiDhv51gQ4v3zWg8DGgyLfAB", Decimals: 6},
	{Symbol: "FTT", Name: "Wrapped FTT", Mint: "AGFEad2et2ZJif9jaGpdMixQqvW5i81aBdvKe7PHNfz3", Decimals: 6},
}

// TokenRegistry resolves mints to asset metadata.
type TokenRegistry struct {
	byMint   map[string]domain.TokenInfo
	bySymbol map[string]domain.TokenInfo
}

// NewTokenRegistry creates a registry over the known asset list.
func NewTokenRegistry() *TokenRegistry {
	r := &TokenRegistry{
		byMint:   make(map[string]domain.TokenInfo, len(knownTokens)),
		bySymbol: make(map[string]domain.TokenInfo, len(knownTokens)),
	}
	for _, t := range knownTokens {
		r.byMint[t.Mint] = t
		r.bySymbol[t.Symbol] = t
	}
	return r
}

// ByMint looks up asset metadata for a mint address.
func (r *TokenRegistry) ByMint(mint string) (domain.TokenInfo, bool) {
	t, ok := r.byMint[mint]
	return t, ok
}

// BySymbol looks up asset metadata by symbol.
func (r *TokenRegistry) BySymbol(symbol string) (domain.TokenInfo, bool) {
	t, ok := r.bySymbol[symbol]
	return t, ok
}

// All returns every known asset.
func (r *TokenRegistry) All() []domain.TokenInfo {
	out := make([]domain.TokenInfo, 0, len(r.byMint))
	for _, t := range knownTokens {
		out = append(out, t)
	}
	return out
}

// CoinFromMarketName extracts the base or quote label of a "BASE/QUOTE"
// market name. Unknown shapes yield "UNKNOWN".
func CoinFromMarketName(name string, quote bool) string {
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "UNKNOWN"
	}
	if quote {
		return parts[1]
	}
	return parts[0]
}
