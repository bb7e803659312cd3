package wallet

import "time"

const (
	// Wallet metadata may be cached; balances never are.
	walletCacheTTL = 5 * time.Minute

	pinMinLen = 4
	pinMaxLen = 6
)
