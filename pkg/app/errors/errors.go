// Package errors defines the closed error taxonomy of the settlement core.
package errors

import (
	"errors"
	"net/http"
)

// Kind identifies one failure class of the settlement core. The set is
// closed: every error surfaced by the engine carries exactly one Kind, and
// callers dispatch on it rather than on message text.
type Kind int

const (
	// KindInternal is an unexpected infrastructure fault (database, encoding).
	KindInternal Kind = iota
	// KindInvalidParameters is malformed or missing input, including an
	// unknown deposit ID.
	KindInvalidParameters
	// KindInvalidPlatform is a zero platform tag.
	KindInvalidPlatform
	// KindAlreadyFinalized is an operation against a terminal deposit.
	KindAlreadyFinalized
	// KindNotDepositor is a refund attempted by someone other than the depositor.
	KindNotDepositor
	// KindAttestationExpired is an attestation presented after its expiry.
	KindAttestationExpired
	// KindNonceAlreadyUsed is an attestation whose nonce was already consumed.
	KindNonceAlreadyUsed
	// KindAttestationMismatch is attestation content that does not match the
	// target deposit or payout.
	KindAttestationMismatch
	// KindInvalidSignature is an attestation signature that does not recover
	// to the configured signer.
	KindInvalidSignature
	// KindTransferFailed is a failed value movement; the whole operation is
	// rolled back.
	KindTransferFailed
	// KindFeeTooHigh is a fee rate above the fixed cap.
	KindFeeTooHigh
	// KindNotOwner is a privileged operation by a non-owner.
	KindNotOwner
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindInvalidPlatform:
		return "InvalidPlatform"
	case KindAlreadyFinalized:
		return "AlreadyFinalized"
	case KindNotDepositor:
		return "NotDepositor"
	case KindAttestationExpired:
		return "AttestationExpired"
	case KindNonceAlreadyUsed:
		return "NonceAlreadyUsed"
	case KindAttestationMismatch:
		return "AttestationMismatch"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindTransferFailed:
		return "TransferFailed"
	case KindFeeTooHigh:
		return "FeeTooHigh"
	case KindNotOwner:
		return "NotOwner"
	default:
		return "Internal"
	}
}

// ServiceError is the error type returned across service boundaries.
type ServiceError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error method to comply with error interface
func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err *ServiceError) Unwrap() error {
	return err.Err
}

// E builds a ServiceError of the given kind. The message is returned to the
// caller; err, when non-nil, is kept for logs and unwrapping.
func E(kind Kind, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err is a ServiceError with the desired Kind.
func Is(err error, kind Kind) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Kind == kind {
		return true
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// IsInternalError reports whether err is an unexpected infrastructure fault
// rather than a caller mistake.
func IsInternalError(err error) bool {
	return KindOf(err) == KindInternal
}

// StatusCode returns the HTTP status code for the error kind.
func (err *ServiceError) StatusCode() int {
	switch err.Kind {
	case KindInvalidParameters, KindInvalidPlatform, KindFeeTooHigh:
		return http.StatusBadRequest
	case KindNotDepositor, KindNotOwner:
		return http.StatusForbidden
	case KindAlreadyFinalized, KindNonceAlreadyUsed:
		return http.StatusConflict
	case KindAttestationExpired, KindAttestationMismatch, KindInvalidSignature:
		return http.StatusUnprocessableEntity
	case KindTransferFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
