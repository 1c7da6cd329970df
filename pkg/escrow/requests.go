package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DepositRequest carries the inputs of the deposit operation. Depositor is
// the already-authenticated caller identity; the attached value is debited
// from the depositor's account atomically with record creation.
type DepositRequest struct {
	PlatformID      uint64
	RecipientUserID uint64
	DepositorUserID uint64
	ContentURI      string
	Amount          *big.Int
	Depositor       common.Address
}

// ClaimRequest carries the inputs of the claim operation. Anyone may submit
// a claim; validity is enforced entirely by the attestation signature.
type ClaimRequest struct {
	DepositID   uint64
	Payout      common.Address
	Attestation ClaimAttestation
	Signature   []byte
}

// ClaimResult reports the settlement split of a successful claim.
type ClaimResult struct {
	DepositID    uint64
	Payout       common.Address
	FeeCollector common.Address
	Amount       *big.Int
	Fee          *big.Int
	Net          *big.Int
}
