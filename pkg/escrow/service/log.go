package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/creatorpay/escrowd/pkg/escrow"
)

const serviceName = "SettlementService"

// logService wraps Service with automatic logging of all mutating calls.
// Read paths pass through untouched.
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the settlement Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) logCall(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		fields = append(fields, zap.Error(err))
		ls.logger.Error(method+" failed", fields...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}

func (ls *logService) Deposit(ctx context.Context, req *escrow.DepositRequest) (id uint64, err error) {
	start := time.Now()
	defer func() {
		ls.logCall("Deposit", start, err,
			zap.String("depositor", req.Depositor.Hex()),
			zap.Uint64("platform_id", req.PlatformID),
			zap.Uint64("recipient_user_id", req.RecipientUserID),
			zap.Uint64("deposit_id", id),
		)
	}()
	return ls.svc.Deposit(ctx, req)
}

func (ls *logService) Claim(ctx context.Context, req *escrow.ClaimRequest) (res *escrow.ClaimResult, err error) {
	start := time.Now()
	defer func() {
		ls.logCall("Claim", start, err,
			zap.Uint64("deposit_id", req.DepositID),
			zap.String("payout", req.Payout.Hex()),
			zap.Uint64("nonce", req.Attestation.Nonce),
		)
	}()
	return ls.svc.Claim(ctx, req)
}

func (ls *logService) Refund(ctx context.Context, depositID uint64, caller common.Address) (err error) {
	start := time.Now()
	defer func() {
		ls.logCall("Refund", start, err,
			zap.Uint64("deposit_id", depositID),
			zap.String("caller", caller.Hex()),
		)
	}()
	return ls.svc.Refund(ctx, depositID, caller)
}

func (ls *logService) SetSigner(ctx context.Context, caller, newSigner common.Address) (err error) {
	start := time.Now()
	defer func() {
		ls.logCall("SetSigner", start, err,
			zap.String("caller", caller.Hex()),
			zap.String("new_signer", newSigner.Hex()),
		)
	}()
	return ls.svc.SetSigner(ctx, caller, newSigner)
}

func (ls *logService) SetFeeConfig(ctx context.Context, caller, collector common.Address, rateBps uint32) (err error) {
	start := time.Now()
	defer func() {
		ls.logCall("SetFeeConfig", start, err,
			zap.String("caller", caller.Hex()),
			zap.String("fee_collector", collector.Hex()),
			zap.Uint32("fee_rate_bps", rateBps),
		)
	}()
	return ls.svc.SetFeeConfig(ctx, caller, collector, rateBps)
}

func (ls *logService) TransferOwnership(ctx context.Context, caller, newOwner common.Address) (err error) {
	start := time.Now()
	defer func() {
		ls.logCall("TransferOwnership", start, err,
			zap.String("caller", caller.Hex()),
			zap.String("new_owner", newOwner.Hex()),
		)
	}()
	return ls.svc.TransferOwnership(ctx, caller, newOwner)
}

func (ls *logService) RenounceOwnership(ctx context.Context, caller common.Address) (err error) {
	start := time.Now()
	defer func() {
		ls.logCall("RenounceOwnership", start, err,
			zap.String("caller", caller.Hex()),
		)
	}()
	return ls.svc.RenounceOwnership(ctx, caller)
}

func (ls *logService) FundAccount(ctx context.Context, caller, account common.Address, amount *big.Int) (err error) {
	start := time.Now()
	defer func() {
		ls.logCall("FundAccount", start, err,
			zap.String("caller", caller.Hex()),
			zap.String("account", account.Hex()),
			zap.String("amount", escrow.FormatAmount(amount)),
		)
	}()
	return ls.svc.FundAccount(ctx, caller, account, amount)
}

func (ls *logService) GetDeposit(ctx context.Context, id uint64) (*escrow.Deposit, error) {
	return ls.svc.GetDeposit(ctx, id)
}

func (ls *logService) IsNonceUsed(ctx context.Context, nonce uint64) (bool, error) {
	return ls.svc.IsNonceUsed(ctx, nonce)
}

func (ls *logService) GetConfig(ctx context.Context) (*escrow.Config, error) {
	return ls.svc.GetConfig(ctx)
}

func (ls *logService) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return ls.svc.GetBalance(ctx, addr)
}

func (ls *logService) ListEvents(ctx context.Context, limit int) ([]*escrow.Event, error) {
	return ls.svc.ListEvents(ctx, limit)
}
