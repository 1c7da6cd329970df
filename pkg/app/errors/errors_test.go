package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestE_WrapsAndClassifies(t *testing.T) {
	cause := errors.New("row not found")
	err := E(KindInvalidParameters, cause, "unknown deposit 7")

	if !Is(err, KindInvalidParameters) {
		t.Fatalf("expected KindInvalidParameters, got %v", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}
	if err.Error() != "row not found" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatal("expected *ServiceError")
	}
	if svcErr.Message != "unknown deposit 7" {
		t.Fatalf("Message = %q", svcErr.Message)
	}
}

func TestE_NilCauseUsesMessage(t *testing.T) {
	err := E(KindNotOwner, nil, "caller is not the owner")
	if err.Error() != "caller is not the owner" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestIs_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("claim deposit 3: %w", E(KindNonceAlreadyUsed, nil, "nonce 5 already consumed"))
	if !Is(err, KindNonceAlreadyUsed) {
		t.Fatal("expected kind to survive fmt.Errorf wrapping")
	}
	if Is(err, KindAlreadyFinalized) {
		t.Fatal("wrong kind matched")
	}
}

func TestKindOf_DefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("plain errors must classify as internal")
	}
	if !IsInternalError(errors.New("plain")) {
		t.Fatal("plain errors are internal")
	}
	if IsInternalError(E(KindFeeTooHigh, nil, "rate 1001 exceeds cap 1000")) {
		t.Fatal("classified errors are not internal")
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		kind Kind
		code int
	}{
		{KindInvalidParameters, http.StatusBadRequest},
		{KindInvalidPlatform, http.StatusBadRequest},
		{KindFeeTooHigh, http.StatusBadRequest},
		{KindNotDepositor, http.StatusForbidden},
		{KindNotOwner, http.StatusForbidden},
		{KindAlreadyFinalized, http.StatusConflict},
		{KindNonceAlreadyUsed, http.StatusConflict},
		{KindAttestationExpired, http.StatusUnprocessableEntity},
		{KindAttestationMismatch, http.StatusUnprocessableEntity},
		{KindInvalidSignature, http.StatusUnprocessableEntity},
		{KindTransferFailed, http.StatusPaymentRequired},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			svcErr := &ServiceError{Kind: tc.kind}
			if got := svcErr.StatusCode(); got != tc.code {
				t.Fatalf("StatusCode(%s) = %d, want %d", tc.kind, got, tc.code)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if KindNonceAlreadyUsed.String() != "NonceAlreadyUsed" {
		t.Fatalf("String() = %q", KindNonceAlreadyUsed.String())
	}
	if Kind(999).String() != "Internal" {
		t.Fatalf("unknown kinds must render as Internal, got %q", Kind(999).String())
	}
}
