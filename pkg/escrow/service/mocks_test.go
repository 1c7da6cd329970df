package service

// Hand-rolled in-memory Store used by the engine tests. RunInTx snapshots
// the whole state and restores it when fn fails, which mirrors the rollback
// behavior of the postgres store closely enough for behavior tests.

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/creatorpay/escrowd/pkg/escrow"
	"github.com/creatorpay/escrowd/pkg/escrowstore"
)

type memStore struct {
	deposits map[uint64]*escrow.Deposit
	nextID   uint64
	nonces   map[uint64]bool
	cfg      *escrow.Config
	balances map[string]*big.Int
	events   []*escrow.Event

	// failOn injects an error for a named method, for failure-path tests.
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		deposits: make(map[uint64]*escrow.Deposit),
		nextID:   1,
		nonces:   make(map[uint64]bool),
		balances: make(map[string]*big.Int),
		failOn:   make(map[string]error),
	}
}

func (m *memStore) fail(method string) error {
	if err, ok := m.failOn[method]; ok {
		return err
	}
	return nil
}

func (m *memStore) RunInTx(_ context.Context, fn func(ctx context.Context, tx escrowstore.Store) error) error {
	snap := m.snapshot()
	if err := fn(context.Background(), m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	deposits map[uint64]*escrow.Deposit
	nextID   uint64
	nonces   map[uint64]bool
	cfg      *escrow.Config
	balances map[string]*big.Int
	events   []*escrow.Event
}

func (m *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		deposits: make(map[uint64]*escrow.Deposit, len(m.deposits)),
		nextID:   m.nextID,
		nonces:   make(map[uint64]bool, len(m.nonces)),
		balances: make(map[string]*big.Int, len(m.balances)),
		events:   append([]*escrow.Event(nil), m.events...),
	}
	for id, dep := range m.deposits {
		cp := *dep
		snap.deposits[id] = &cp
	}
	for n := range m.nonces {
		snap.nonces[n] = true
	}
	for addr, bal := range m.balances {
		snap.balances[addr] = new(big.Int).Set(bal)
	}
	if m.cfg != nil {
		cp := *m.cfg
		snap.cfg = &cp
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.deposits = snap.deposits
	m.nextID = snap.nextID
	m.nonces = snap.nonces
	m.cfg = snap.cfg
	m.balances = snap.balances
	m.events = snap.events
}

func (m *memStore) CreateDeposit(_ context.Context, dep *escrow.Deposit) (uint64, error) {
	if err := m.fail("CreateDeposit"); err != nil {
		return 0, err
	}
	id := m.nextID
	m.nextID++
	cp := *dep
	cp.ID = id
	m.deposits[id] = &cp
	return id, nil
}

func (m *memStore) GetDeposit(_ context.Context, id uint64) (*escrow.Deposit, error) {
	if err := m.fail("GetDeposit"); err != nil {
		return nil, err
	}
	dep, ok := m.deposits[id]
	if !ok {
		return nil, escrowstore.ErrDepositNotFound
	}
	cp := *dep
	return &cp, nil
}

func (m *memStore) GetDepositForUpdate(ctx context.Context, id uint64) (*escrow.Deposit, error) {
	return m.GetDeposit(ctx, id)
}

func (m *memStore) FinalizeDeposit(_ context.Context, id uint64, at time.Time) error {
	if err := m.fail("FinalizeDeposit"); err != nil {
		return err
	}
	dep, ok := m.deposits[id]
	if !ok || dep.Finalized {
		return escrowstore.ErrDepositNotFound
	}
	dep.Finalized = true
	dep.FinalizedAt = &at
	return nil
}

func (m *memStore) IsNonceUsed(_ context.Context, nonce uint64) (bool, error) {
	if err := m.fail("IsNonceUsed"); err != nil {
		return false, err
	}
	return m.nonces[nonce], nil
}

func (m *memStore) ConsumeNonce(_ context.Context, nonce uint64) error {
	if err := m.fail("ConsumeNonce"); err != nil {
		return err
	}
	m.nonces[nonce] = true
	return nil
}

func (m *memStore) InitConfig(_ context.Context, cfg *escrow.Config) error {
	if err := m.fail("InitConfig"); err != nil {
		return err
	}
	if m.cfg == nil {
		cp := *cfg
		m.cfg = &cp
	}
	return nil
}

func (m *memStore) GetConfig(_ context.Context) (*escrow.Config, error) {
	if err := m.fail("GetConfig"); err != nil {
		return nil, err
	}
	if m.cfg == nil {
		return nil, escrowstore.ErrConfigNotFound
	}
	cp := *m.cfg
	return &cp, nil
}

func (m *memStore) GetConfigForUpdate(ctx context.Context) (*escrow.Config, error) {
	return m.GetConfig(ctx)
}

func (m *memStore) UpdateConfig(_ context.Context, cfg *escrow.Config) error {
	if err := m.fail("UpdateConfig"); err != nil {
		return err
	}
	cp := *cfg
	m.cfg = &cp
	return nil
}

func (m *memStore) GetBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	if err := m.fail("GetBalance"); err != nil {
		return nil, err
	}
	bal, ok := m.balances[addr.Hex()]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (m *memStore) CreditAccount(_ context.Context, addr common.Address, amount *big.Int) error {
	if err := m.fail("CreditAccount"); err != nil {
		return err
	}
	bal, ok := m.balances[addr.Hex()]
	if !ok {
		bal = big.NewInt(0)
	}
	m.balances[addr.Hex()] = new(big.Int).Add(bal, amount)
	return nil
}

func (m *memStore) DebitAccount(_ context.Context, addr common.Address, amount *big.Int) error {
	if err := m.fail("DebitAccount"); err != nil {
		return err
	}
	bal, ok := m.balances[addr.Hex()]
	if !ok || bal.Cmp(amount) < 0 {
		return escrowstore.ErrInsufficientFunds
	}
	m.balances[addr.Hex()] = new(big.Int).Sub(bal, amount)
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, ev *escrow.Event) error {
	if err := m.fail("InsertEvent"); err != nil {
		return err
	}
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, limit int) ([]*escrow.Event, error) {
	if err := m.fail("ListEvents"); err != nil {
		return nil, err
	}
	events := append([]*escrow.Event(nil), m.events...)
	// Newest first, like the postgres store.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
