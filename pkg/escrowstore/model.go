package escrowstore

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/creatorpay/escrowd/pkg/escrow"
)

// DepositDao is a data access object that maps directly to the 'deposits'
// table in PostgreSQL. The bigserial primary key is the deposit ID: it
// starts at 1, grows monotonically and is never reused.
type DepositDao struct {
	bun.BaseModel   `bun:"table:deposits,alias:d"`
	ID              int64      `bun:"id,pk,autoincrement"`
	Depositor       string     `bun:"depositor,notnull,type:varchar(42)"`
	Amount          string     `bun:"amount,notnull,type:numeric(38,0)"`
	PlatformID      int64      `bun:"platform_id,notnull"`
	RecipientUserID int64      `bun:"recipient_user_id,notnull"`
	DepositorUserID int64      `bun:"depositor_user_id,notnull,default:0"`
	ContentURI      string     `bun:"content_uri,type:text"`
	Finalized       bool       `bun:"finalized,notnull,default:false"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	FinalizedAt     *time.Time `bun:"finalized_at"`
}

// NonceDao maps to the 'consumed_nonces' table. Rows are only ever inserted.
type NonceDao struct {
	bun.BaseModel `bun:"table:consumed_nonces,alias:n"`
	Nonce         int64     `bun:"nonce,pk"`
	ConsumedAt    time.Time `bun:"consumed_at,nullzero,default:current_timestamp"`
}

// ConfigDao maps to the single-row 'engine_config' table.
type ConfigDao struct {
	bun.BaseModel `bun:"table:engine_config,alias:c"`
	ID            int64     `bun:"id,pk"`
	Owner         string    `bun:"owner,notnull,type:varchar(42)"`
	Signer        string    `bun:"signer,notnull,type:varchar(42)"`
	FeeCollector  string    `bun:"fee_collector,notnull,type:varchar(42)"`
	FeeRateBps    int32     `bun:"fee_rate_bps,notnull,default:0"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// AccountDao maps to the 'accounts' table, the internal balance ledger.
type AccountDao struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`
	Address       string    `bun:"address,pk,type:varchar(42)"`
	Balance       string    `bun:"balance,notnull,type:numeric(38,0)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// EventDao maps to the 'escrow_events' table consumed by external indexers.
type EventDao struct {
	bun.BaseModel `bun:"table:escrow_events,alias:e"`
	ID            string         `bun:"id,pk,type:varchar(36)"`
	EventType     string         `bun:"event_type,notnull,type:varchar(40)"`
	DepositID     *int64         `bun:"deposit_id"`
	Payload       map[string]any `bun:"payload,type:jsonb"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,default:current_timestamp"`
}

func toDepositDao(dep *escrow.Deposit) *DepositDao {
	dao := &DepositDao{
		ID:              int64(dep.ID),
		Depositor:       dep.Depositor.Hex(),
		Amount:          dep.Amount.String(),
		PlatformID:      int64(dep.PlatformID),
		RecipientUserID: int64(dep.RecipientUserID),
		DepositorUserID: int64(dep.DepositorUserID),
		ContentURI:      dep.ContentURI,
		Finalized:       dep.Finalized,
		CreatedAt:       dep.CreatedAt,
		FinalizedAt:     dep.FinalizedAt,
	}
	return dao
}

func toDeposit(dao *DepositDao) (*escrow.Deposit, error) {
	amount, err := parseNumeric(dao.Amount)
	if err != nil {
		return nil, fmt.Errorf("deposit %d amount: %w", dao.ID, err)
	}
	return &escrow.Deposit{
		ID:              uint64(dao.ID),
		Depositor:       common.HexToAddress(dao.Depositor),
		Amount:          amount,
		PlatformID:      uint64(dao.PlatformID),
		RecipientUserID: uint64(dao.RecipientUserID),
		DepositorUserID: uint64(dao.DepositorUserID),
		ContentURI:      dao.ContentURI,
		Finalized:       dao.Finalized,
		CreatedAt:       dao.CreatedAt,
		FinalizedAt:     dao.FinalizedAt,
	}, nil
}

func toConfigDao(cfg *escrow.Config) *ConfigDao {
	return &ConfigDao{
		ID:           configRowID,
		Owner:        cfg.Owner.Hex(),
		Signer:       cfg.Signer.Hex(),
		FeeCollector: cfg.FeeCollector.Hex(),
		FeeRateBps:   int32(cfg.FeeRateBps),
		UpdatedAt:    cfg.UpdatedAt,
	}
}

func toConfig(dao *ConfigDao) *escrow.Config {
	return &escrow.Config{
		Owner:        common.HexToAddress(dao.Owner),
		Signer:       common.HexToAddress(dao.Signer),
		FeeCollector: common.HexToAddress(dao.FeeCollector),
		FeeRateBps:   uint32(dao.FeeRateBps),
		UpdatedAt:    dao.UpdatedAt,
	}
}

func toEventDao(ev *escrow.Event) *EventDao {
	dao := &EventDao{
		ID:        ev.ID,
		EventType: string(ev.Type),
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt,
	}
	if ev.DepositID != nil {
		id := int64(*ev.DepositID)
		dao.DepositID = &id
	}
	return dao
}

func toEvent(dao *EventDao) *escrow.Event {
	ev := &escrow.Event{
		ID:        dao.ID,
		Type:      escrow.EventType(dao.EventType),
		Payload:   dao.Payload,
		CreatedAt: dao.CreatedAt,
	}
	if dao.DepositID != nil {
		id := uint64(*dao.DepositID)
		ev.DepositID = &id
	}
	return ev
}

// parseNumeric converts a NUMERIC column value into a big integer. Postgres
// may render the column with a decimal point depending on driver settings,
// so parse through decimal rather than big.Int.SetString.
func parseNumeric(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("numeric %q has a fractional part", s)
	}
	return d.BigInt(), nil
}
