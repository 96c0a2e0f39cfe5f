// Package api exposes the authenticated member endpoints: idempotent member
// initialization, member lookup, on-demand reconciliation, and checkout
// transaction verification. Webhook endpoints live with their providers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/voxnote/membership/pkg/billing"
	"github.com/voxnote/membership/pkg/membership"
)

// Handler provides the authenticated membership HTTP endpoints.
type Handler struct {
	config Config
}

// NewHandler creates a Handler from the given collaborators.
func NewHandler(config Config) (*Handler, error) {
	if config.Manager == nil || config.Authenticate == nil {
		return nil, fmt.Errorf("manager and authenticator are required")
	}
	if config.Logger == nil {
		config.Logger = &membership.NoopLogger{}
	}
	return &Handler{config: config}, nil
}

// InitMember creates a free member row for the calling user if none exists.
// Safe to call repeatedly; an existing row is left untouched.
func (h *Handler) InitMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.config.Manager.EnsureExists(r.Context(), userID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to initialize member")
		return
	}

	h.writeJSON(w, http.StatusOK, struct{}{})
}

// GetMember returns the calling user's membership row.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	member, err := h.config.Manager.GetMember(r.Context(), userID)
	if errors.Is(err, membership.ErrMemberNotFound) {
		h.writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load member")
		return
	}

	h.writeJSON(w, http.StatusOK, MemberResponse{
		ID:             member.ID,
		Plan:           string(member.Plan),
		IsOnTrial:      member.IsOnTrial,
		SubscriptionID: member.SubscriptionID,
		CreatedAt:      member.CreatedAt,
		UpdatedAt:      member.UpdatedAt,
	})
}

// Reconcile runs the provider order-history repair pass and returns its
// aggregate report.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	if h.config.Reconciler == nil {
		h.writeError(w, http.StatusInternalServerError, "reconciliation not configured")
		return
	}

	report, err := h.config.Reconciler.Reconcile(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrProviderNotConfigured):
			h.writeError(w, http.StatusInternalServerError, "provider not configured")
		case errors.Is(err, billing.ErrProviderAPIError):
			h.writeError(w, http.StatusBadGateway, "provider API error")
		default:
			h.writeError(w, http.StatusInternalServerError, "reconciliation failed")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// VerifyTransaction confirms a checkout transaction for the calling user and
// promotes them on confirmed payment.
func (h *Handler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if h.config.Verifier == nil {
		h.writeError(w, http.StatusInternalServerError, "verification not configured")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing transactionId")
		return
	}

	if err := h.config.Verifier.VerifyTransaction(r.Context(), userID, req.TransactionID); err != nil {
		switch {
		case errors.Is(err, billing.ErrPaymentNotConfirmed):
			h.writeError(w, http.StatusBadRequest, "payment not confirmed")
		case errors.Is(err, billing.ErrProviderNotConfigured):
			h.writeError(w, http.StatusInternalServerError, "provider not configured")
		default:
			h.writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// authenticate resolves the bearer credential, answering 401 on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.config.Authenticate(r)
	if err != nil || userID == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, errorResponse{Error: msg})
}
