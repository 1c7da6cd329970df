package escrowstore

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/creatorpay/escrowd/pkg/escrow"
)

var (
	// ErrDepositNotFound is returned when a deposit lookup finds no record.
	// Distinct from a deposit that exists but is already finalized.
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrConfigNotFound is returned when the engine configuration row has
	// not been initialized.
	ErrConfigNotFound = errors.New("engine config not initialized")

	// ErrInsufficientFunds is returned when a debit would take an account
	// balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// DepositStore owns deposit records: sequential ID assignment, lookup and
// terminal marking. The ledger is append-only; deposits are never deleted.
type DepositStore interface {
	CreateDeposit(ctx context.Context, dep *escrow.Deposit) (uint64, error)
	GetDeposit(ctx context.Context, id uint64) (*escrow.Deposit, error)
	// GetDepositForUpdate locks the deposit row for the enclosing
	// transaction. Must only be called on a transactional store.
	GetDepositForUpdate(ctx context.Context, id uint64) (*escrow.Deposit, error)
	FinalizeDeposit(ctx context.Context, id uint64, at time.Time) error
}

// NonceStore is the replay registry. Nonces are attestation-scoped: once
// consumed, a nonce is burned for every future attestation regardless of
// deposit. Insert-only, no expiry.
type NonceStore interface {
	IsNonceUsed(ctx context.Context, nonce uint64) (bool, error)
	ConsumeNonce(ctx context.Context, nonce uint64) error
}

// ConfigStore persists the singleton engine configuration row.
type ConfigStore interface {
	InitConfig(ctx context.Context, cfg *escrow.Config) error
	GetConfig(ctx context.Context) (*escrow.Config, error)
	GetConfigForUpdate(ctx context.Context) (*escrow.Config, error)
	UpdateConfig(ctx context.Context, cfg *escrow.Config) error
}

// AccountStore is the internal value-transfer substrate: a balance per
// address, credited and debited inside settlement transactions.
type AccountStore interface {
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	CreditAccount(ctx context.Context, addr common.Address, amount *big.Int) error
	DebitAccount(ctx context.Context, addr common.Address, amount *big.Int) error
}

// EventStore records indexer-facing events of successful transitions.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *escrow.Event) error
	ListEvents(ctx context.Context, limit int) ([]*escrow.Event, error)
}

// Store is the full persistence interface of the settlement engine.
type Store interface {
	DepositStore
	NonceStore
	ConfigStore
	AccountStore
	EventStore

	// RunInTx runs fn inside a single database transaction; the Store
	// passed to fn is bound to that transaction. Any error from fn rolls
	// the whole transaction back, which is what makes claim and refund
	// all-or-nothing.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
