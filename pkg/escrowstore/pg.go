package escrowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/creatorpay/escrowd/pkg/escrow"
)

const configRowID int64 = 1

type pgStore struct {
	db bun.IDB
	// root is non-nil only on the top-level store; transactional stores
	// handed to RunInTx callbacks leave it nil.
	root *bun.DB
}

// NewStore creates the postgres implementation of the settlement store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db, root: db}
}

func (s *pgStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.root == nil {
		// Already transactional; nested settlement steps join the
		// enclosing transaction.
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &pgStore{db: tx})
	})
}

func (s *pgStore) CreateDeposit(ctx context.Context, dep *escrow.Deposit) (uint64, error) {
	dao := toDepositDao(dep)
	dao.ID = 0 // assigned by the sequence

	_, err := s.db.NewInsert().
		Model(dao).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create deposit: %w", err)
	}
	return uint64(dao.ID), nil
}

func (s *pgStore) GetDeposit(ctx context.Context, id uint64) (*escrow.Deposit, error) {
	return s.getDeposit(ctx, id, false)
}

func (s *pgStore) GetDepositForUpdate(ctx context.Context, id uint64) (*escrow.Deposit, error) {
	return s.getDeposit(ctx, id, true)
}

func (s *pgStore) getDeposit(ctx context.Context, id uint64, forUpdate bool) (*escrow.Deposit, error) {
	dao := new(DepositDao)
	query := s.db.NewSelect().Model(dao).Where("d.id = ?", int64(id))
	if forUpdate {
		query = query.For("UPDATE")
	}

	err := query.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return toDeposit(dao)
}

func (s *pgStore) FinalizeDeposit(ctx context.Context, id uint64, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*DepositDao)(nil)).
		Set("finalized = TRUE").
		Set("finalized_at = ?", at).
		Where("id = ? AND finalized = FALSE", int64(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to finalize deposit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize deposit: %w", err)
	}
	if n == 0 {
		return ErrDepositNotFound
	}
	return nil
}

func (s *pgStore) IsNonceUsed(ctx context.Context, nonce uint64) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*NonceDao)(nil)).
		Where("nonce = ?", int64(nonce)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return exists, nil
}

func (s *pgStore) ConsumeNonce(ctx context.Context, nonce uint64) error {
	dao := &NonceDao{Nonce: int64(nonce)}
	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	return nil
}

func (s *pgStore) InitConfig(ctx context.Context, cfg *escrow.Config) error {
	dao := toConfigDao(cfg)
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to init config: %w", err)
	}
	return nil
}

func (s *pgStore) GetConfig(ctx context.Context) (*escrow.Config, error) {
	return s.getConfig(ctx, false)
}

func (s *pgStore) GetConfigForUpdate(ctx context.Context) (*escrow.Config, error) {
	return s.getConfig(ctx, true)
}

func (s *pgStore) getConfig(ctx context.Context, forUpdate bool) (*escrow.Config, error) {
	dao := new(ConfigDao)
	query := s.db.NewSelect().Model(dao).Where("c.id = ?", configRowID)
	if forUpdate {
		query = query.For("UPDATE")
	}

	err := query.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return toConfig(dao), nil
}

func (s *pgStore) UpdateConfig(ctx context.Context, cfg *escrow.Config) error {
	_, err := s.db.NewUpdate().
		Model((*ConfigDao)(nil)).
		Set("owner = ?", cfg.Owner.Hex()).
		Set("signer = ?", cfg.Signer.Hex()).
		Set("fee_collector = ?", cfg.FeeCollector.Hex()).
		Set("fee_rate_bps = ?", int32(cfg.FeeRateBps)).
		Set("updated_at = NOW()").
		Where("id = ?", configRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	return nil
}

func (s *pgStore) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	dao := new(AccountDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", addr.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseNumeric(dao.Balance)
}

func (s *pgStore) CreditAccount(ctx context.Context, addr common.Address, amount *big.Int) error {
	dao := &AccountDao{
		Address: addr.Hex(),
		Balance: amount.String(),
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address) DO UPDATE").
		Set("balance = a.balance + EXCLUDED.balance").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

func (s *pgStore) DebitAccount(ctx context.Context, addr common.Address, amount *big.Int) error {
	res, err := s.db.NewUpdate().
		Model((*AccountDao)(nil)).
		Set("balance = balance - ?::NUMERIC", amount.String()).
		Set("updated_at = NOW()").
		Where("address = ? AND balance >= ?::NUMERIC", addr.Hex(), amount.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *pgStore) InsertEvent(ctx context.Context, ev *escrow.Event) error {
	dao := toEventDao(ev)
	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *pgStore) ListEvents(ctx context.Context, limit int) ([]*escrow.Event, error) {
	var daos []EventDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	events := make([]*escrow.Event, len(daos))
	for i := range daos {
		events[i] = toEvent(&daos[i])
	}
	return events, nil
}
