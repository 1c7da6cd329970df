package service

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creatorpay/escrowd/pkg/auth"
	"github.com/creatorpay/escrowd/pkg/escrow"
	"github.com/creatorpay/escrowd/pkg/escrow/sign"
)

type httpEnv struct {
	router     chi.Router
	store      *memStore
	callerKey  *ecdsa.PrivateKey
	callerHex  string
	callerAddr common.Address
	attester   *ecdsa.PrivateKey
	domain     sign.Domain
}

// newHTTPEnv wires a real engine over the in-memory store behind the chi
// router. The caller key doubles as the engine owner so admin endpoints can
// be exercised with the same signature flow.
func newHTTPEnv(t *testing.T, feeRateBps uint32) *httpEnv {
	t.Helper()

	callerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	attester, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}

	env := &httpEnv{
		store:      newMemStore(),
		callerKey:  callerKey,
		callerHex:  hex.EncodeToString(crypto.FromECDSA(callerKey)),
		callerAddr: crypto.PubkeyToAddress(callerKey.PublicKey),
		attester:   attester,
		domain: sign.Domain{
			Name:              "escrowd",
			Version:           "1",
			ChainID:           1,
			VerifyingContract: common.HexToAddress("0x2000000000000000000000000000000000000001"),
		},
	}

	collector := collectorAddr
	if feeRateBps == 0 {
		collector = common.Address{}
	}
	if err := InitGenesis(t.Context(), env.store, &escrow.Config{
		Owner:        env.callerAddr,
		Signer:       crypto.PubkeyToAddress(attester.PublicKey),
		FeeCollector: collector,
		FeeRateBps:   feeRateBps,
		UpdatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("InitGenesis() failed: %v", err)
	}

	svc := NewService(env.store, env.domain, zap.NewNop())
	handler := NewHandler(svc, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	env.router = r
	return env
}

func (env *httpEnv) do(t *testing.T, method, path string, body any, signed bool) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		sig, err := auth.SignEIP191(payload, env.callerHex)
		if err != nil {
			t.Fatalf("SignEIP191() failed: %v", err)
		}
		req.Header.Set("X-Signature", sig)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *httpEnv) createDeposit(t *testing.T, amount int64) uint64 {
	t.Helper()
	if err := env.store.CreditAccount(t.Context(), env.callerAddr, big.NewInt(amount)); err != nil {
		t.Fatalf("CreditAccount() failed: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"platform_id":       7,
		"recipient_user_id": 42,
		"content_uri":       "ipfs://bafyexample",
		"amount":            escrow.FormatAmount(big.NewInt(amount)),
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DepositID uint64 `json:"deposit_id"`
	}
	decodeBody(t, rec, &resp)
	return resp.DepositID
}

func (env *httpEnv) claimBody(t *testing.T, depositID, nonce uint64) map[string]any {
	t.Helper()
	att := &escrow.ClaimAttestation{
		PlatformID:    7,
		UserID:        42,
		PayoutAddress: payoutAddr,
		DepositID:     depositID,
		Nonce:         nonce,
		Expiry:        time.Now().Add(time.Hour).Unix(),
	}
	sig, err := sign.SignAttestation(env.domain, att, env.attester)
	if err != nil {
		t.Fatalf("SignAttestation() failed: %v", err)
	}
	return map[string]any{
		"payout_address": payoutAddr.Hex(),
		"attestation":    att,
		"signature":      "0x" + hex.EncodeToString(sig),
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHTTP_DepositAndGet(t *testing.T) {
	env := newHTTPEnv(t, 0)
	id := env.createDeposit(t, 500)

	rec := env.do(t, http.MethodGet, "/v1/deposits/1", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get deposit returned %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		ID        uint64 `json:"id"`
		Depositor string `json:"depositor"`
		Amount    string `json:"amount"`
		Finalized bool   `json:"finalized"`
	}
	decodeBody(t, rec, &view)
	if view.ID != id || view.Amount != "500" || view.Finalized {
		t.Fatalf("unexpected deposit view: %+v", view)
	}
	if view.Depositor != env.callerAddr.Hex() {
		t.Fatalf("expected depositor %s, got %s", env.callerAddr.Hex(), view.Depositor)
	}
}

func TestHTTP_DepositRequiresSignature(t *testing.T) {
	env := newHTTPEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"platform_id":       7,
		"recipient_user_id": 42,
		"amount":            "100",
	}, false)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing signature, got %d", rec.Code)
	}

	var resp struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, rec, &resp)
	if resp.Kind != "InvalidSignature" {
		t.Fatalf("expected InvalidSignature kind, got %q", resp.Kind)
	}
}

func TestHTTP_ClaimSettles(t *testing.T) {
	env := newHTTPEnv(t, 100)
	id := env.createDeposit(t, 10000)

	rec := env.do(t, http.MethodPost, "/v1/deposits/1/claim", env.claimBody(t, id, 1001), false)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Fee string `json:"fee"`
		Net string `json:"net"`
	}
	decodeBody(t, rec, &resp)
	if resp.Fee != "100" || resp.Net != "9900" {
		t.Fatalf("expected fee=100 net=9900, got fee=%s net=%s", resp.Fee, resp.Net)
	}

	// Second claim conflicts.
	rec = env.do(t, http.MethodPost, "/v1/deposits/1/claim", env.claimBody(t, id, 1002), false)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second claim, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHTTP_RefundForbiddenForStranger(t *testing.T) {
	env := newHTTPEnv(t, 0)
	id := env.createDeposit(t, 100)

	// A different key signs the refund request.
	stranger, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	strangerEnv := *env
	strangerEnv.callerHex = hex.EncodeToString(crypto.FromECDSA(stranger))

	rec := strangerEnv.do(t, http.MethodPost, "/v1/deposits/1/refund", map[string]any{}, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger refund, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/deposits/1/refund", map[string]any{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("refund by depositor returned %d: %s", rec.Code, rec.Body.String())
	}
	_ = id
}

func TestHTTP_ConfigAndNonceViews(t *testing.T) {
	env := newHTTPEnv(t, 100)
	id := env.createDeposit(t, 100)

	rec := env.do(t, http.MethodGet, "/v1/config", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get config returned %d", rec.Code)
	}
	var cfg struct {
		Owner      string `json:"owner"`
		FeeRateBps uint32 `json:"fee_rate_bps"`
	}
	decodeBody(t, rec, &cfg)
	if cfg.Owner != env.callerAddr.Hex() || cfg.FeeRateBps != 100 {
		t.Fatalf("unexpected config view: %+v", cfg)
	}

	rec = env.do(t, http.MethodGet, "/v1/nonces/55", nil, false)
	var nonceView struct {
		Used bool `json:"used"`
	}
	decodeBody(t, rec, &nonceView)
	if nonceView.Used {
		t.Fatal("nonce 55 must be unused before any claim")
	}

	if got := env.do(t, http.MethodPost, "/v1/deposits/1/claim", env.claimBody(t, id, 55), false); got.Code != http.StatusOK {
		t.Fatalf("claim returned %d: %s", got.Code, got.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/nonces/55", nil, false)
	decodeBody(t, rec, &nonceView)
	if !nonceView.Used {
		t.Fatal("nonce 55 must be used after the claim")
	}
}

func TestHTTP_AdminFeeConfig(t *testing.T) {
	env := newHTTPEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/admin/fee-config", map[string]any{
		"fee_collector": collectorAddr.Hex(),
		"fee_rate_bps":  1001,
	}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for rate over cap, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, rec, &resp)
	if resp.Kind != "FeeTooHigh" {
		t.Fatalf("expected FeeTooHigh kind, got %q", resp.Kind)
	}

	rec = env.do(t, http.MethodPost, "/v1/admin/fee-config", map[string]any{
		"fee_collector": collectorAddr.Hex(),
		"fee_rate_bps":  250,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("fee config update returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHTTP_AdminRenounceThenLockedOut(t *testing.T) {
	env := newHTTPEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/admin/ownership/renounce", map[string]any{}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("renounce returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/admin/signer", map[string]any{
		"signer": strangerAddr.Hex(),
	}, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after renounce, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHTTP_AccountsAndEvents(t *testing.T) {
	env := newHTTPEnv(t, 0)
	id := env.createDeposit(t, 300)
	if got := env.do(t, http.MethodPost, "/v1/deposits/1/claim", env.claimBody(t, id, 1), false); got.Code != http.StatusOK {
		t.Fatalf("claim returned %d: %s", got.Code, got.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/v1/accounts/"+payoutAddr.Hex(), nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account returned %d", rec.Code)
	}
	var acct struct {
		Balance string `json:"balance"`
	}
	decodeBody(t, rec, &acct)
	if acct.Balance != "300" {
		t.Fatalf("expected payout balance 300, got %s", acct.Balance)
	}

	rec = env.do(t, http.MethodGet, "/v1/events?limit=10", nil, false)
	var events struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	decodeBody(t, rec, &events)
	if len(events.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events.Events))
	}
	if events.Events[0].Type != string(escrow.EventDepositClaimed) {
		t.Fatalf("expected newest-first ordering, got %s first", events.Events[0].Type)
	}
}

func TestHTTP_InvalidDepositID(t *testing.T) {
	env := newHTTPEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/v1/deposits/notanumber", nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/deposits/999", nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown deposit, got %d", rec.Code)
	}
}
