package domain

// NativeMint is the wrapped native asset mint. Wallet balances for this
// mint are read from account lamports rather than token account data.
const NativeMint = "So11111111111111111111111111111111111111112"

// TokenProgramID owns all token accounts on the ledger.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// TokenInfo describes a known asset.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Mint     string `json:"mint"`
	Decimals int    `json:"decimals"`
}

// TokenAccount is a wallet-owned token account, as enumerated from the
// ledger's token program.
type TokenAccount struct {
	PubKey        string
	EffectiveMint string
	Amount        uint64 // raw amount; lamports for the native pseudo-account
	Lamports      uint64
	IsNative      bool
}
