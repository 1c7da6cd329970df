package service

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/creatorpay/escrowd/pkg/app/errors"
	apphttp "github.com/creatorpay/escrowd/pkg/app/http"
	"github.com/creatorpay/escrowd/pkg/auth"
	"github.com/creatorpay/escrowd/pkg/escrow"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handler exposes the settlement engine over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// NewHandler creates an HTTP handler backed by the given service.
func NewHandler(svc Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts all settlement endpoints on the router. Mutating
// endpoints require an EIP-191 signature over the raw request body in the
// X-Signature header; the recovered address is the caller identity.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.requireSignedBody)

			r.Post("/deposits", apphttp.HandleError(h.deposit))
			r.Post("/deposits/{id}/refund", apphttp.HandleError(h.refund))

			r.Route("/admin", func(r chi.Router) {
				r.Post("/signer", apphttp.HandleError(h.setSigner))
				r.Post("/fee-config", apphttp.HandleError(h.setFeeConfig))
				r.Post("/ownership/transfer", apphttp.HandleError(h.transferOwnership))
				r.Post("/ownership/renounce", apphttp.HandleError(h.renounceOwnership))
				r.Post("/fund", apphttp.HandleError(h.fundAccount))
			})
		})

		// Claim authorization is carried entirely by the attestation
		// signature, so the endpoint itself is open.
		r.Post("/deposits/{id}/claim", apphttp.HandleError(h.claim))

		r.Get("/deposits/{id}", apphttp.HandleError(h.getDeposit))
		r.Get("/nonces/{nonce}", apphttp.HandleError(h.getNonce))
		r.Get("/config", apphttp.HandleError(h.getConfig))
		r.Get("/accounts/{address}", apphttp.HandleError(h.getBalance))
		r.Get("/events", apphttp.HandleError(h.listEvents))
	})
}

// requireSignedBody authenticates the caller by recovering the EIP-191
// signer of the raw request body from the X-Signature header. The body is
// restored for the downstream handler.
func (h *Handler) requireSignedBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig := r.Header.Get("X-Signature")
		if sig == "" {
			apphttp.DefaultErrorHandler(w, apperrors.E(apperrors.KindInvalidSignature, nil,
				"missing X-Signature header"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			apphttp.DefaultErrorHandler(w, apperrors.E(apperrors.KindInvalidParameters, err,
				"failed to read request body"))
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller, err := auth.RecoverEIP191Signer(body, sig)
		if err != nil {
			h.logger.Debug("signature recovery failed", zap.Error(err))
			apphttp.DefaultErrorHandler(w, apperrors.E(apperrors.KindInvalidSignature, err,
				"invalid request signature"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

type depositRequest struct {
	PlatformID      uint64 `json:"platform_id"`
	RecipientUserID uint64 `json:"recipient_user_id"`
	DepositorUserID uint64 `json:"depositor_user_id"`
	ContentURI      string `json:"content_uri"`
	Amount          string `json:"amount"`
}

type depositResponse struct {
	DepositID uint64 `json:"deposit_id"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid request body")
	}

	amount, err := escrow.ParseAmount(req.Amount)
	if err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid amount")
	}

	id, err := h.svc.Deposit(r.Context(), &escrow.DepositRequest{
		PlatformID:      req.PlatformID,
		RecipientUserID: req.RecipientUserID,
		DepositorUserID: req.DepositorUserID,
		ContentURI:      req.ContentURI,
		Amount:          amount,
		Depositor:       caller,
	})
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusCreated, &depositResponse{DepositID: id})
}

type claimRequest struct {
	PayoutAddress string                  `json:"payout_address"`
	Attestation   escrow.ClaimAttestation `json:"attestation"`
	Signature     string                  `json:"signature"`
}

type claimResponse struct {
	DepositID    uint64 `json:"deposit_id"`
	Payout       string `json:"payout"`
	FeeCollector string `json:"fee_collector"`
	Amount       string `json:"amount"`
	Fee          string `json:"fee"`
	Net          string `json:"net"`
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) error {
	depositID, err := pathUint(r, "id")
	if err != nil {
		return err
	}

	var req claimRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid request body")
	}
	if !auth.ValidateAddress(req.PayoutAddress) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "invalid payout address")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		return apperrors.E(apperrors.KindInvalidSignature, err, "signature is not valid hex")
	}

	result, err := h.svc.Claim(r.Context(), &escrow.ClaimRequest{
		DepositID:   depositID,
		Payout:      common.HexToAddress(req.PayoutAddress),
		Attestation: req.Attestation,
		Signature:   sig,
	})
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, &claimResponse{
		DepositID:    result.DepositID,
		Payout:       result.Payout.Hex(),
		FeeCollector: result.FeeCollector.Hex(),
		Amount:       escrow.FormatAmount(result.Amount),
		Fee:          escrow.FormatAmount(result.Fee),
		Net:          escrow.FormatAmount(result.Net),
	})
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	depositID, err := pathUint(r, "id")
	if err != nil {
		return err
	}

	if err := h.svc.Refund(r.Context(), depositID, caller); err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"deposit_id": depositID,
		"refunded":   true,
	})
}

type setSignerRequest struct {
	Signer string `json:"signer"`
}

func (h *Handler) setSigner(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	var req setSignerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid request body")
	}
	if !auth.ValidateAddress(req.Signer) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "invalid signer address")
	}

	if err := h.svc.SetSigner(r.Context(), caller, common.HexToAddress(req.Signer)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"signer": auth.NormalizeAddress(req.Signer)})
}

type setFeeConfigRequest struct {
	FeeCollector string `json:"fee_collector"`
	FeeRateBps   uint32 `json:"fee_rate_bps"`
}

func (h *Handler) setFeeConfig(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	var req setFeeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid request body")
	}
	// Zero collector is legal at a zero rate; the service enforces the pairing.
	collector := common.Address{}
	if req.FeeCollector != "" {
		if !auth.ValidateAddress(req.FeeCollector) {
			return apperrors.E(apperrors.KindInvalidParameters, nil, "invalid fee collector address")
		}
		collector = common.HexToAddress(req.FeeCollector)
	}

	if err := h.svc.SetFeeConfig(r.Context(), caller, collector, req.FeeRateBps); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"fee_collector": collector.Hex(),
		"fee_rate_bps":  req.FeeRateBps,
	})
}

type transferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	var req transferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid request body")
	}
	if !auth.ValidateAddress(req.NewOwner) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "invalid new owner address")
	}

	if err := h.svc.TransferOwnership(r.Context(), caller, common.HexToAddress(req.NewOwner)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"owner": auth.NormalizeAddress(req.NewOwner)})
}

func (h *Handler) renounceOwnership(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	if err := h.svc.RenounceOwnership(r.Context(), caller); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"owner": common.Address{}.Hex()})
}

type fundAccountRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (h *Handler) fundAccount(w http.ResponseWriter, r *http.Request) error {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return apperrors.E(apperrors.KindInvalidSignature, nil, "missing caller identity")
	}

	var req fundAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid request body")
	}
	if !auth.ValidateAddress(req.Account) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "invalid account address")
	}
	amount, err := escrow.ParseAmount(req.Amount)
	if err != nil {
		return apperrors.E(apperrors.KindInvalidParameters, err, "invalid amount")
	}

	if err := h.svc.FundAccount(r.Context(), caller, common.HexToAddress(req.Account), amount); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"account": auth.NormalizeAddress(req.Account),
		"amount":  escrow.FormatAmount(amount),
	})
}

type depositView struct {
	ID              uint64     `json:"id"`
	Depositor       string     `json:"depositor"`
	Amount          string     `json:"amount"`
	PlatformID      uint64     `json:"platform_id"`
	RecipientUserID uint64     `json:"recipient_user_id"`
	DepositorUserID uint64     `json:"depositor_user_id"`
	ContentURI      string     `json:"content_uri"`
	Finalized       bool       `json:"finalized"`
	CreatedAt       time.Time  `json:"created_at"`
	FinalizedAt     *time.Time `json:"finalized_at,omitempty"`
}

func (h *Handler) getDeposit(w http.ResponseWriter, r *http.Request) error {
	id, err := pathUint(r, "id")
	if err != nil {
		return err
	}

	dep, err := h.svc.GetDeposit(r.Context(), id)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, &depositView{
		ID:              dep.ID,
		Depositor:       dep.Depositor.Hex(),
		Amount:          escrow.FormatAmount(dep.Amount),
		PlatformID:      dep.PlatformID,
		RecipientUserID: dep.RecipientUserID,
		DepositorUserID: dep.DepositorUserID,
		ContentURI:      dep.ContentURI,
		Finalized:       dep.Finalized,
		CreatedAt:       dep.CreatedAt,
		FinalizedAt:     dep.FinalizedAt,
	})
}

func (h *Handler) getNonce(w http.ResponseWriter, r *http.Request) error {
	nonce, err := pathUint(r, "nonce")
	if err != nil {
		return err
	}

	used, err := h.svc.IsNonceUsed(r.Context(), nonce)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"nonce": nonce, "used": used})
}

type configView struct {
	Owner        string    `json:"owner"`
	Signer       string    `json:"signer"`
	FeeCollector string    `json:"fee_collector"`
	FeeRateBps   uint32    `json:"fee_rate_bps"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) error {
	cfg, err := h.svc.GetConfig(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, &configView{
		Owner:        cfg.Owner.Hex(),
		Signer:       cfg.Signer.Hex(),
		FeeCollector: cfg.FeeCollector.Hex(),
		FeeRateBps:   cfg.FeeRateBps,
		UpdatedAt:    cfg.UpdatedAt,
	})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")
	if !auth.ValidateAddress(address) {
		return apperrors.E(apperrors.KindInvalidParameters, nil, "invalid account address")
	}

	balance, err := h.svc.GetBalance(r.Context(), common.HexToAddress(address))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"address": auth.NormalizeAddress(address),
		"balance": escrow.FormatAmount(balance),
	})
}

type eventView struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	DepositID *uint64        `json:"deposit_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) error {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.E(apperrors.KindInvalidParameters, err, "invalid limit")
		}
		limit = n
	}

	events, err := h.svc.ListEvents(r.Context(), limit)
	if err != nil {
		return err
	}

	views := make([]*eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, &eventView{
			ID:        ev.ID,
			Type:      string(ev.Type),
			DepositID: ev.DepositID,
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt,
		})
	}
	return writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func pathUint(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.E(apperrors.KindInvalidParameters, err,
			fmt.Sprintf("invalid %s %q", name, raw))
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
