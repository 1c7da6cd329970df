// Package escrow holds the domain model for the deposit/claim/refund
// settlement core: escrowed deposits targeting a platform-scoped recipient,
// signed claim attestations, and the singleton engine configuration.
package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxFeeRateBps is the inclusive upper bound for the fee rate,
	// enforced at every configuration write.
	MaxFeeRateBps uint32 = 1000

	// BpsDenominator converts basis points to a fraction.
	BpsDenominator int64 = 10000
)

// Deposit is an escrowed value record targeting a platform-scoped recipient
// identity. Once Finalized is set the record is immutable and no value may
// move against it again.
type Deposit struct {
	ID              uint64
	Depositor       common.Address
	Amount          *big.Int
	PlatformID      uint64
	RecipientUserID uint64
	// DepositorUserID is the depositor's platform-scoped identity.
	// 0 means "anonymous/unspecified"; a platform whose legitimate user IDs
	// include 0 cannot be distinguished from anonymity here.
	DepositorUserID uint64
	ContentURI      string
	Finalized       bool
	CreatedAt       time.Time
	FinalizedAt     *time.Time
}

// ClaimAttestation is a signed statement authorizing release of a specific
// deposit to a specific payout address. It is a transient input: only its
// nonce persists after a successful claim.
type ClaimAttestation struct {
	PlatformID    uint64         `json:"platform_id"`
	UserID        uint64         `json:"user_id"`
	PayoutAddress common.Address `json:"payout_address"`
	DepositID     uint64         `json:"deposit_id"`
	Nonce         uint64         `json:"nonce"`
	// Expiry is a unix timestamp; the attestation is valid through this
	// second inclusive.
	Expiry int64 `json:"expiry"`
}

// Config is the singleton engine configuration. Owner may become the zero
// address via ownership renouncement, after which every privileged
// operation is permanently unreachable. Signer must always be non-zero.
// FeeCollector may be zero only while FeeRateBps is zero.
type Config struct {
	Owner        common.Address
	Signer       common.Address
	FeeCollector common.Address
	FeeRateBps   uint32
	UpdatedAt    time.Time
}

// SplitFee computes the fee/net split for a claim. Fee uses integer floor
// division; fee + net always equals amount exactly.
func SplitFee(amount *big.Int, rateBps uint32) (fee, net *big.Int) {
	fee = new(big.Int).Mul(amount, big.NewInt(int64(rateBps)))
	fee.Div(fee, big.NewInt(BpsDenominator))
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}
