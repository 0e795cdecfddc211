package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
)

// refundGateway is the slice of the gateway client refunds need.
type refundGateway interface {
	CreateRefund(paymentIntentID string) error
}

type AdminHandler struct {
	gateway  refundGateway
	payments *store.PaymentStore
	logger   *slog.Logger
}

func NewAdminHandler(gw refundGateway, payments *store.PaymentStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		gateway:  gw,
		payments: payments,
		logger:   logger,
	}
}

// ListPayments returns all payments, newest first.
func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListAll()
	if err != nil {
		h.logger.Error("list payments", "error", err)
		respondError(w, http.StatusInternalServerError, "unable to load payments")
		return
	}
	if payments == nil {
		payments = []*model.Payment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

type refundRequest struct {
	PaymentID int64 `json:"payment_id"`
}

// ProcessRefund issues a full refund through the gateway against a payment's
// intent, then marks the local payment refunded. Payments still pending have
// no successful charge and cannot be refunded.
func (h *AdminHandler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == 0 {
		respondError(w, http.StatusBadRequest, "payment id required")
		return
	}

	p, err := h.payments.GetByID(req.PaymentID)
	if err != nil {
		h.logger.Error("load payment for refund", "payment_id", req.PaymentID, "error", err)
		respondError(w, http.StatusInternalServerError, "unable to load payment")
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "payment not found")
		return
	}
	if p.Status == model.PaymentRefunded {
		respondError(w, http.StatusConflict, "payment already refunded")
		return
	}
	if p.Status != model.PaymentSucceeded || p.StripePaymentIntentID == nil {
		respondError(w, http.StatusConflict, "payment has not completed and cannot be refunded")
		return
	}

	if err := h.gateway.CreateRefund(*p.StripePaymentIntentID); err != nil {
		h.logger.Error("gateway refund", "payment_id", p.ID, "error", err)
		respondError(w, http.StatusBadGateway, "refund failed, please try again")
		return
	}

	if _, err := h.payments.MarkRefunded(p.ID); err != nil {
		// The gateway refund went through; the local row will be corrected
		// by a retry or manual reconciliation.
		h.logger.Error("mark payment refunded", "payment_id", p.ID, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
