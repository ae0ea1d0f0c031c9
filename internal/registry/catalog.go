// Package registry maintains the merged market catalog: the built-in
// curated list plus user-added custom markets.
package registry

import "dex_go/internal/domain"

// Program ids by listing generation. Markets on retired generations are
// deprecated but remain resolvable so residual funds can be settled.
const (
	ProgramIDV3 = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	ProgramIDV2 = "EUqojwWA2rd19FZrzeBncJsm38Jm1hEhE3zsmX3bRc2o"
)

// Curated upstream corrections.
const (
	// This listing carries a stale name upstream; it is surfaced as
	// xCOPE/USDC after the token's redenomination.
	renamedXCopeAddress = "7MpMwArporUHEGW7quUpkPZp5L5cHPs9eKUfKCdaPHq2"

	// Known broken listing, dropped from the catalog entirely.
	excludedAddress = "5GAPymgnnWieGcRrcghZdA3aanefqa4cZx1ZSE8UTyMV"
)

// builtinMarkets is the curated catalog. Order matters only for display.
var builtinMarkets = []domain.MarketInfo{
	{Name: "RAY/WUSDT", Address: "C4z32zw9WKaGPhNuU54ohzrV4CE1Uau3cFx6T8RLjxYC", ProgramID: ProgramIDV3, Deprecated: true},
	{Name: "RAY/USDC", Address: "2xiv8A5xrJ7RnGdxXB42uFEkYHJjszEhaJyKKt4WaLep", ProgramID: ProgramIDV3},
	{Name: "RAY/USDT", Address: "teE55QrL4a4QSfydR9dnHF97jgCfptpuigbb53Lo95g", ProgramID: ProgramIDV3},
	{Name: "RAY/SRM", Address: "Cm4MmknScg7qbKqytb1mM92xgDxv3TNXos4tKbBqTDy7", ProgramID: ProgramIDV3},
	{Name: "RAY/SOL", Address: "C6tp2RVZnxBPFbnAsfTjis8BN9tycESAT4SgDQgbbrsA", ProgramID: ProgramIDV3},
	{Name: "RAY/ETH", Address: "6jx6aoNFbmorwyncVP5V5ESKfuFc9oUYebob1iF6tgN4", ProgramID: ProgramIDV3},
	{Name: "RAY/USDT-V2", Address: "HZyhLoyAnfQ72irTdqPdWo2oFL9zzXaBmAqN72iF3sdX", ProgramID: ProgramIDV2, Deprecated: true},
	{Name: "RAY/USDC-V2", Address: "Bgz8EEMBjejAGSn6FdtKJkSGtvg4cuJUuRwaCBp28S3U", ProgramID: ProgramIDV2, Deprecated: true},
	{Name: "RAY/SRM-V2", Address: "HSGuveQDXtvYR432xjpKPgHfzWQxnb3T8FNuAAvaBbsU", ProgramID: ProgramIDV2, Deprecated: true},
	{Name: "OXY/WUSDT", Address: "HdBhZrnrxpje39ggXnTb6WuTWVvj5YKcSHwYGQCRsVj", ProgramID: ProgramIDV3, Deprecated: true},
	{Name: "OXY/USDC", Address: "GZ3WBFsqntmERPwumFEYgrX2B7J7G11MzNZAy7Hje27X", ProgramID: ProgramIDV3, Deprecated: true},
	{Name: "FIDA/RAY", Address: "9wH4Krv8Vim3op3JAu5NGZQdGxU8HLGAHZh3K77CemxC", ProgramID: ProgramIDV3},
	{Name: "OXY/RAY", Address: "HcVjkXmvA1815Es3pSiibsRaFw8r9Gy7BhyzZX83Zhjx", ProgramID: ProgramIDV3},
	{Name: "MAPS/RAY", Address: "7Q4hee42y8ZGguqKmwLhpFNqVTjeVNNBqhx8nt32VF85", ProgramID: ProgramIDV3},
	{Name: "KIN/RAY", Address: "Fcxy8qYgs8MZqiLx2pijjay6LHsSUqXW47pwMGysa3i9", ProgramID: ProgramIDV3},
	{Name: "YFI/SRM", Address: "6xC1ia74NbGZdBkySTw93wdxN4Sh2VfULtXh1utPaJDJ", ProgramID: ProgramIDV3},
	{Name: "FTT/SRM", Address: "CDvQqnMrt9rmjAxGGE6GTPUdzLpEhgNuNZ1tWAvPsF3W", ProgramID: ProgramIDV3},
	{Name: "BTC/SRM", Address: "HfsedaWauvDaLPm6rwgMc6D5QRmhr8siqGtS6tf2wthU", ProgramID: ProgramIDV3},
	{Name: "SOL/USDC", Address: "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT", ProgramID: ProgramIDV3},
	{Name: "SOL/USDT", Address: "HWHvQhFmJB3NUcu1aihKmrKegfVxBEHzwVX6yZCKEsi1", ProgramID: ProgramIDV3},
	{Name: "SRM/USDC", Address: "ByRys5tuUWDgL73G8JBAEfkdFf8JWBzPBDHsBVQ5vbQA", ProgramID: ProgramIDV3},
	{Name: "SRM/USDT", Address: "AtNnsY1AyRERWJ8xCskfz38YdvruWVJQUVXgScC1iPb", ProgramID: ProgramIDV3},
	{Name: "BTC/USDC", Address: "A8YFbxQYFVqKZaoYJLLUVcQiWP7G2MeEgW5wsAQgMvFw", ProgramID: ProgramIDV3},
	{Name: "ETH/USDC", Address: "4tSvZvnbyzHXLMTiFonMyxZoHmFqau1XArcRCVHLZ5gX", ProgramID: ProgramIDV3},
}

// upstreamMarkets is the unfiltered exchange-wide listing, merged into the
// curated catalog by BuiltinMarkets after corrections.
var upstreamMarkets = []domain.MarketInfo{
	{Name: "COPE/USDC", Address: renamedXCopeAddress, ProgramID: ProgramIDV3, Deprecated: false},
	{Name: "FIDA/USDC", Address: "E14BKBhDWD4EuTkWj1ooZezesGxMW8LPCps4W5PuzZJo", ProgramID: ProgramIDV3},
	{Name: "BROKEN/USDC", Address: excludedAddress, ProgramID: ProgramIDV3},
	// Upstream repeats curated entries; the merge keeps the curated form.
	{Name: "SOL/USDC", Address: "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT", ProgramID: ProgramIDV3},
}

// BuiltinMarkets returns the curated catalog merged with the upstream
// listing. Rules: the excluded address is dropped, curated entries win on
// address collisions, and the renamed listing surfaces as xCOPE/USDC.
func BuiltinMarkets() []domain.MarketInfo {
	merged := make([]domain.MarketInfo, len(builtinMarkets))
	copy(merged, builtinMarkets)

	seen := make(map[string]bool, len(merged))
	for _, m := range merged {
		seen[m.Address] = true
	}

	for _, m := range upstreamMarkets {
		if m.Address == excludedAddress || seen[m.Address] {
			continue
		}
		if m.Address == renamedXCopeAddress {
			m.Name = "xCOPE/USDC"
		}
		seen[m.Address] = true
		merged = append(merged, m)
	}
	return merged
}
