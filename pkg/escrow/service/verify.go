package service

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/creatorpay/escrowd/pkg/app/errors"
	"github.com/creatorpay/escrowd/pkg/escrow"
	"github.com/creatorpay/escrowd/pkg/escrow/sign"
)

// verifyClaim runs the ordered attestation checks. The order is part of the
// contract: the first failing check decides the reported error kind, and no
// check mutates state, so a rejected claim wastes nothing and the caller can
// retry with a corrected attestation.
//
// dep is nil when the target deposit does not exist. nonceUsed reflects the
// registry at the time of the enclosing transaction.
func verifyClaim(
	domain sign.Domain,
	att *escrow.ClaimAttestation,
	signature []byte,
	dep *escrow.Deposit,
	depositID uint64,
	payout common.Address,
	now time.Time,
	signer common.Address,
	nonceUsed bool,
) error {
	if payout == (common.Address{}) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "payout address must not be zero")
	}

	// The expiry second itself is still valid.
	if now.Unix() > att.Expiry {
		return apperrors.E(apperrors.KindAttestationExpired, nil,
			fmt.Sprintf("attestation expired at %d", att.Expiry))
	}

	if nonceUsed {
		return apperrors.E(apperrors.KindNonceAlreadyUsed, nil,
			fmt.Sprintf("nonce %d already consumed", att.Nonce))
	}

	if dep == nil {
		return apperrors.E(apperrors.KindInvalidParameters, nil,
			fmt.Sprintf("unknown deposit %d", depositID))
	}
	if dep.Finalized {
		return apperrors.E(apperrors.KindAlreadyFinalized, nil,
			fmt.Sprintf("deposit %d already finalized", dep.ID))
	}

	if dep.PlatformID != att.PlatformID || dep.RecipientUserID != att.UserID {
		return apperrors.E(apperrors.KindAttestationMismatch, nil,
			"attestation platform/user does not match deposit")
	}

	if att.DepositID != dep.ID || att.PayoutAddress != payout {
		return apperrors.E(apperrors.KindAttestationMismatch, nil,
			"attestation deposit/payout does not match claim")
	}

	recovered, err := sign.RecoverSigner(domain, att, signature)
	if err != nil {
		return apperrors.E(apperrors.KindInvalidSignature, err, "attestation signature malformed")
	}
	if recovered != signer {
		return apperrors.E(apperrors.KindInvalidSignature, nil,
			"attestation not signed by the configured signer")
	}

	return nil
}
