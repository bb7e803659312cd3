package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EntryRequest describes one ledger append. Status defaults to COMPLETED;
// collaborators locking funds pass PENDING.
type EntryRequest struct {
	WalletID    uint
	Amount      decimal.Decimal
	SourceTag   string
	SourceID    *uint
	Description string
	Status      string
}

// Cache is the subset of the cache service the wallet service needs.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	GenerateKey(entityType, keyType string, value interface{}) string
}
