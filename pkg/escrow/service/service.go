// Package service implements the settlement engine: deposit creation, claim
// settlement with attestation verification, refunds, and owner-gated
// configuration. All mutating operations are serialized by a single mutex
// and executed inside one database transaction, with state written strictly
// before value movement.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creatorpay/escrowd/internal/metrics"
	apperrors "github.com/creatorpay/escrowd/pkg/app/errors"
	"github.com/creatorpay/escrowd/pkg/escrow"
	"github.com/creatorpay/escrowd/pkg/escrow/sign"
	"github.com/creatorpay/escrowd/pkg/escrowstore"
)

// Service defines the settlement engine business logic.
type Service interface {
	Deposit(ctx context.Context, req *escrow.DepositRequest) (uint64, error)
	Claim(ctx context.Context, req *escrow.ClaimRequest) (*escrow.ClaimResult, error)
	Refund(ctx context.Context, depositID uint64, caller common.Address) error

	SetSigner(ctx context.Context, caller, newSigner common.Address) error
	SetFeeConfig(ctx context.Context, caller, collector common.Address, rateBps uint32) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	RenounceOwnership(ctx context.Context, caller common.Address) error
	FundAccount(ctx context.Context, caller, account common.Address, amount *big.Int) error

	GetDeposit(ctx context.Context, id uint64) (*escrow.Deposit, error)
	IsNonceUsed(ctx context.Context, nonce uint64) (bool, error)
	GetConfig(ctx context.Context) (*escrow.Config, error)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	ListEvents(ctx context.Context, limit int) ([]*escrow.Event, error)
}

type settlementService struct {
	store  escrowstore.Store
	domain sign.Domain
	logger *zap.Logger
	now    func() time.Time

	// mu serializes all mutating operations. The underlying platform the
	// original engine ran on guaranteed strictly sequential execution; here
	// the guarantee is explicit rather than incidental.
	mu sync.Mutex
}

// NewService creates the settlement engine.
func NewService(store escrowstore.Store, domain sign.Domain, logger *zap.Logger) Service {
	return newService(store, domain, logger)
}

func newService(store escrowstore.Store, domain sign.Domain, logger *zap.Logger) *settlementService {
	return &settlementService{
		store:  store,
		domain: domain,
		logger: logger,
		now:    time.Now,
	}
}

// InitGenesis writes the initial configuration row if none exists yet.
// Validation mirrors the configuration setters: the signer must be non-zero
// and the fee collector may be zero only at a zero rate.
func InitGenesis(ctx context.Context, store escrowstore.Store, cfg *escrow.Config) error {
	if cfg.Signer == (common.Address{}) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "genesis signer must not be zero")
	}
	if cfg.Owner == (common.Address{}) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "genesis owner must not be zero")
	}
	if cfg.FeeRateBps > escrow.MaxFeeRateBps {
		return apperrors.E(apperrors.KindFeeTooHigh, nil,
			fmt.Sprintf("genesis fee rate %d exceeds cap %d", cfg.FeeRateBps, escrow.MaxFeeRateBps))
	}
	if cfg.FeeCollector == (common.Address{}) && cfg.FeeRateBps != 0 {
		return apperrors.E(apperrors.KindInvalidParameters, nil,
			"genesis fee collector must be set for a nonzero rate")
	}
	return store.InitConfig(ctx, cfg)
}

func (s *settlementService) Deposit(ctx context.Context, req *escrow.DepositRequest) (uint64, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		metrics.DepositsTotal.WithLabelValues("rejected").Inc()
		return 0, apperrors.E(apperrors.KindInvalidParameters, nil, "deposit amount must be positive")
	}
	if req.RecipientUserID == 0 {
		metrics.DepositsTotal.WithLabelValues("rejected").Inc()
		return 0, apperrors.E(apperrors.KindInvalidParameters, nil, "recipient user id must not be zero")
	}
	if req.PlatformID == 0 {
		metrics.DepositsTotal.WithLabelValues("rejected").Inc()
		return 0, apperrors.E(apperrors.KindInvalidPlatform, nil, "platform id must not be zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var depositID uint64
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx escrowstore.Store) error {
		// The attached value is collected from the depositor's account
		// atomically with record creation.
		if err := tx.DebitAccount(ctx, req.Depositor, req.Amount); err != nil {
			if errors.Is(err, escrowstore.ErrInsufficientFunds) {
				return apperrors.E(apperrors.KindTransferFailed, err, "deposit value could not be attached")
			}
			return err
		}

		id, err := tx.CreateDeposit(ctx, &escrow.Deposit{
			Depositor:       req.Depositor,
			Amount:          req.Amount,
			PlatformID:      req.PlatformID,
			RecipientUserID: req.RecipientUserID,
			DepositorUserID: req.DepositorUserID,
			ContentURI:      req.ContentURI,
			CreatedAt:       s.now(),
		})
		if err != nil {
			return err
		}
		depositID = id

		return tx.InsertEvent(ctx, s.newEvent(escrow.EventDepositCreated, &id, map[string]any{
			"depositor":         req.Depositor.Hex(),
			"amount":            escrow.FormatAmount(req.Amount),
			"platform_id":       req.PlatformID,
			"recipient_user_id": req.RecipientUserID,
			"depositor_user_id": req.DepositorUserID,
			"content_uri":       req.ContentURI,
		}))
	})
	if err != nil {
		metrics.DepositsTotal.WithLabelValues("failed").Inc()
		return 0, err
	}

	metrics.DepositsTotal.WithLabelValues("created").Inc()
	s.logger.Info("deposit created",
		zap.Uint64("deposit_id", depositID),
		zap.String("depositor", req.Depositor.Hex()),
		zap.String("amount", escrow.FormatAmount(req.Amount)),
		zap.Uint64("platform_id", req.PlatformID))
	return depositID, nil
}

func (s *settlementService) Claim(ctx context.Context, req *escrow.ClaimRequest) (*escrow.ClaimResult, error) {
	start := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *escrow.ClaimResult
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx escrowstore.Store) error {
		cfg, err := tx.GetConfig(ctx)
		if err != nil {
			return err
		}

		nonceUsed, err := tx.IsNonceUsed(ctx, req.Attestation.Nonce)
		if err != nil {
			return err
		}

		dep, err := tx.GetDepositForUpdate(ctx, req.DepositID)
		if err != nil && !errors.Is(err, escrowstore.ErrDepositNotFound) {
			return err
		}

		if err := verifyClaim(s.domain, &req.Attestation, req.Signature, dep,
			req.DepositID, req.Payout, s.now(), cfg.Signer, nonceUsed); err != nil {
			return err
		}

		// State before effect: terminal flag and nonce consumption are
		// written before any credit, inside the same transaction. A
		// reentrant claim observes the deposit as already finalized.
		if err := tx.FinalizeDeposit(ctx, dep.ID, s.now()); err != nil {
			return err
		}
		if err := tx.ConsumeNonce(ctx, req.Attestation.Nonce); err != nil {
			return err
		}

		fee, net := escrow.SplitFee(dep.Amount, cfg.FeeRateBps)
		if fee.Sign() > 0 {
			if err := tx.CreditAccount(ctx, cfg.FeeCollector, fee); err != nil {
				return apperrors.E(apperrors.KindTransferFailed, err, "fee transfer failed")
			}
		}
		if err := tx.CreditAccount(ctx, req.Payout, net); err != nil {
			return apperrors.E(apperrors.KindTransferFailed, err, "payout transfer failed")
		}

		result = &escrow.ClaimResult{
			DepositID:    dep.ID,
			Payout:       req.Payout,
			FeeCollector: cfg.FeeCollector,
			Amount:       dep.Amount,
			Fee:          fee,
			Net:          net,
		}

		return tx.InsertEvent(ctx, s.newEvent(escrow.EventDepositClaimed, &dep.ID, map[string]any{
			"payout":        req.Payout.Hex(),
			"fee_collector": cfg.FeeCollector.Hex(),
			"amount":        escrow.FormatAmount(dep.Amount),
			"fee":           escrow.FormatAmount(fee),
			"net":           escrow.FormatAmount(net),
			"nonce":         req.Attestation.Nonce,
		}))
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("claim", "failed").Inc()
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues("claim", "settled").Inc()
	metrics.SettlementDuration.WithLabelValues("claim").Observe(s.now().Sub(start).Seconds())
	s.logger.Info("deposit claimed",
		zap.Uint64("deposit_id", result.DepositID),
		zap.String("payout", result.Payout.Hex()),
		zap.String("net", escrow.FormatAmount(result.Net)),
		zap.String("fee", escrow.FormatAmount(result.Fee)))
	observeAmount("claim", result.Amount)
	if result.Fee.Sign() > 0 {
		fee, _ := new(big.Float).SetInt(result.Fee).Float64()
		metrics.FeesCollected.Add(fee)
	}
	return result, nil
}

func (s *settlementService) Refund(ctx context.Context, depositID uint64, caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refunded *big.Int
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx escrowstore.Store) error {
		dep, err := tx.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			if errors.Is(err, escrowstore.ErrDepositNotFound) {
				return apperrors.E(apperrors.KindInvalidParameters, err,
					fmt.Sprintf("unknown deposit %d", depositID))
			}
			return err
		}
		if dep.Finalized {
			return apperrors.E(apperrors.KindAlreadyFinalized, nil,
				fmt.Sprintf("deposit %d already finalized", dep.ID))
		}
		if caller != dep.Depositor {
			return apperrors.E(apperrors.KindNotDepositor, nil, "only the depositor may refund")
		}

		if err := tx.FinalizeDeposit(ctx, dep.ID, s.now()); err != nil {
			return err
		}
		if err := tx.CreditAccount(ctx, dep.Depositor, dep.Amount); err != nil {
			return apperrors.E(apperrors.KindTransferFailed, err, "refund transfer failed")
		}
		refunded = dep.Amount

		return tx.InsertEvent(ctx, s.newEvent(escrow.EventDepositRefunded, &dep.ID, map[string]any{
			"depositor": dep.Depositor.Hex(),
			"amount":    escrow.FormatAmount(dep.Amount),
		}))
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("refund", "failed").Inc()
		return err
	}

	metrics.SettlementsTotal.WithLabelValues("refund", "settled").Inc()
	observeAmount("refund", refunded)
	s.logger.Info("deposit refunded",
		zap.Uint64("deposit_id", depositID),
		zap.String("amount", escrow.FormatAmount(refunded)))
	return nil
}

// withOwner runs fn inside a transaction after verifying the caller is the
// current owner. Once ownership has been renounced the owner is the zero
// address and no caller can ever pass this gate again.
func (s *settlementService) withOwner(
	ctx context.Context,
	caller common.Address,
	fn func(ctx context.Context, tx escrowstore.Store, cfg *escrow.Config) error,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.RunInTx(ctx, func(ctx context.Context, tx escrowstore.Store) error {
		cfg, err := tx.GetConfigForUpdate(ctx)
		if err != nil {
			return err
		}
		if cfg.Owner == (common.Address{}) || caller != cfg.Owner {
			return apperrors.E(apperrors.KindNotOwner, nil, "caller is not the owner")
		}
		return fn(ctx, tx, cfg)
	})
}

func (s *settlementService) SetSigner(ctx context.Context, caller, newSigner common.Address) error {
	err := s.withOwner(ctx, caller, func(ctx context.Context, tx escrowstore.Store, cfg *escrow.Config) error {
		if newSigner == (common.Address{}) {
			return apperrors.E(apperrors.KindInvalidParameters, nil, "signer must not be zero")
		}
		old := cfg.Signer
		cfg.Signer = newSigner
		if err := tx.UpdateConfig(ctx, cfg); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, s.newEvent(escrow.EventSignerUpdated, nil, map[string]any{
			"old_signer": old.Hex(),
			"new_signer": newSigner.Hex(),
		}))
	})
	countAdminOp("set_signer", err)
	return err
}

func (s *settlementService) SetFeeConfig(ctx context.Context, caller, collector common.Address, rateBps uint32) error {
	err := s.withOwner(ctx, caller, func(ctx context.Context, tx escrowstore.Store, cfg *escrow.Config) error {
		if rateBps > escrow.MaxFeeRateBps {
			return apperrors.E(apperrors.KindFeeTooHigh, nil,
				fmt.Sprintf("fee rate %d exceeds cap %d", rateBps, escrow.MaxFeeRateBps))
		}
		if collector == (common.Address{}) && rateBps != 0 {
			return apperrors.E(apperrors.KindInvalidParameters, nil,
				"fee collector must be set for a nonzero rate")
		}
		cfg.FeeCollector = collector
		cfg.FeeRateBps = rateBps
		if err := tx.UpdateConfig(ctx, cfg); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, s.newEvent(escrow.EventFeeConfigUpdated, nil, map[string]any{
			"fee_collector": collector.Hex(),
			"fee_rate_bps":  rateBps,
		}))
	})
	countAdminOp("set_fee_config", err)
	return err
}

func (s *settlementService) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	err := s.withOwner(ctx, caller, func(ctx context.Context, tx escrowstore.Store, cfg *escrow.Config) error {
		if newOwner == (common.Address{}) {
			return apperrors.E(apperrors.KindInvalidParameters, nil,
				"new owner must not be zero; use renounce to give up ownership")
		}
		old := cfg.Owner
		cfg.Owner = newOwner
		if err := tx.UpdateConfig(ctx, cfg); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, s.newEvent(escrow.EventOwnershipTransferred, nil, map[string]any{
			"old_owner": old.Hex(),
			"new_owner": newOwner.Hex(),
		}))
	})
	countAdminOp("transfer_ownership", err)
	return err
}

// RenounceOwnership sets the owner to the zero address. This is irreversible:
// every privileged operation afterwards fails NotOwner, permanently. It is
// the documented escape hatch for freezing the configuration with no
// recovery path.
func (s *settlementService) RenounceOwnership(ctx context.Context, caller common.Address) error {
	err := s.withOwner(ctx, caller, func(ctx context.Context, tx escrowstore.Store, cfg *escrow.Config) error {
		old := cfg.Owner
		cfg.Owner = common.Address{}
		if err := tx.UpdateConfig(ctx, cfg); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, s.newEvent(escrow.EventOwnershipTransferred, nil, map[string]any{
			"old_owner": old.Hex(),
			"new_owner": common.Address{}.Hex(),
			"renounced": true,
		}))
	})
	countAdminOp("renounce_ownership", err)
	return err
}

func (s *settlementService) FundAccount(ctx context.Context, caller, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "funding amount must be positive")
	}
	if account == (common.Address{}) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "account must not be zero")
	}
	err := s.withOwner(ctx, caller, func(ctx context.Context, tx escrowstore.Store, cfg *escrow.Config) error {
		if err := tx.CreditAccount(ctx, account, amount); err != nil {
			return apperrors.E(apperrors.KindTransferFailed, err, "funding transfer failed")
		}
		return tx.InsertEvent(ctx, s.newEvent(escrow.EventAccountFunded, nil, map[string]any{
			"account": account.Hex(),
			"amount":  escrow.FormatAmount(amount),
		}))
	})
	countAdminOp("fund_account", err)
	return err
}

func (s *settlementService) GetDeposit(ctx context.Context, id uint64) (*escrow.Deposit, error) {
	dep, err := s.store.GetDeposit(ctx, id)
	if err != nil {
		if errors.Is(err, escrowstore.ErrDepositNotFound) {
			return nil, apperrors.E(apperrors.KindInvalidParameters, err,
				fmt.Sprintf("unknown deposit %d", id))
		}
		return nil, err
	}
	return dep, nil
}

func (s *settlementService) IsNonceUsed(ctx context.Context, nonce uint64) (bool, error) {
	return s.store.IsNonceUsed(ctx, nonce)
}

func (s *settlementService) GetConfig(ctx context.Context) (*escrow.Config, error) {
	return s.store.GetConfig(ctx)
}

func (s *settlementService) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return s.store.GetBalance(ctx, addr)
}

func (s *settlementService) ListEvents(ctx context.Context, limit int) ([]*escrow.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListEvents(ctx, limit)
}

func (s *settlementService) newEvent(typ escrow.EventType, depositID *uint64, payload map[string]any) *escrow.Event {
	return &escrow.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		DepositID: depositID,
		Payload:   payload,
		CreatedAt: s.now(),
	}
}

func observeAmount(kind string, amount *big.Int) {
	if amount == nil {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	metrics.SettledAmount.WithLabelValues(kind).Observe(f)
}

func countAdminOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.AdminOpsTotal.WithLabelValues(op, status).Inc()
}
