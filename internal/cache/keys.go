package cache

// Well-known keys shared by the read hooks and the mutation paths that
// invalidate them. Centralized so both sides always agree.

// TokenAccountsKey caches the wallet's token account enumeration.
func TokenAccountsKey(walletPub string) Key {
	return NewKey("tokenAccounts", walletPub)
}

// OpenOrdersKey caches the wallet's open-orders accounts for one market.
func OpenOrdersKey(marketAddress, walletPub string) Key {
	return NewKey("openOrders", marketAddress, walletPub)
}

// OrderBookKey caches the decoded book view for one market.
func OrderBookKey(marketAddress string) Key {
	return NewKey("orderBook", marketAddress)
}

// FillsKey caches decoded event-queue fills for one market.
func FillsKey(marketAddress string) Key {
	return NewKey("fills", marketAddress)
}

// FeeTierKey caches the wallet's fee discount lookup.
func FeeTierKey(walletPub string) Key {
	return NewKey("feeTier", walletPub)
}
