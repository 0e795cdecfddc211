package handler

import (
	"log/slog"
	"net/http"

	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
)

// MemberHandler serves the signed-in member's own records. Reads go through
// the row-scoped payment view, so a member can never see another member's
// rows no matter what ids they ask for.
type MemberHandler struct {
	members  *store.MemberStore
	types    *store.MembershipTypeStore
	payments *store.PaymentStore
	entries  *store.EntryFeeStore
	logger   *slog.Logger
}

func NewMemberHandler(
	members *store.MemberStore,
	types *store.MembershipTypeStore,
	payments *store.PaymentStore,
	entries *store.EntryFeeStore,
	logger *slog.Logger,
) *MemberHandler {
	return &MemberHandler{
		members:  members,
		types:    types,
		payments: payments,
		entries:  entries,
		logger:   logger,
	}
}

// Me returns the current member's profile.
func (h *MemberHandler) Me(w http.ResponseWriter, r *http.Request) {
	memberID := MemberIDFromContext(r.Context())
	m, err := h.members.GetByID(memberID)
	if err != nil || m == nil {
		if err != nil {
			h.logger.Error("load member", "member_id", memberID, "error", err)
		}
		respondError(w, http.StatusNotFound, "profile unavailable")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// ListMembershipTypes returns the purchasable tiers. Public endpoint.
func (h *MemberHandler) ListMembershipTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.types.ListActive()
	if err != nil {
		h.logger.Error("list membership types", "error", err)
		respondError(w, http.StatusInternalServerError, "unable to load membership types")
		return
	}
	if types == nil {
		types = []*model.MembershipType{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"membership_types": types})
}

// ListPayments returns the member's own payments, newest first. A payment may
// still read pending shortly after checkout; the webhook closes the gap.
func (h *MemberHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	memberID := MemberIDFromContext(r.Context())
	payments, err := h.payments.Scoped(memberID).List()
	if err != nil {
		h.logger.Error("list member payments", "member_id", memberID, "error", err)
		respondError(w, http.StatusInternalServerError, "unable to load payments")
		return
	}
	if payments == nil {
		payments = []*model.Payment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// ListEntries returns the member's unpaid show entry fees.
func (h *MemberHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	memberID := MemberIDFromContext(r.Context())
	fees, err := h.entries.ListUnpaidByMember(memberID)
	if err != nil {
		h.logger.Error("list entry fees", "member_id", memberID, "error", err)
		respondError(w, http.StatusInternalServerError, "unable to load entry fees")
		return
	}
	if fees == nil {
		fees = []*model.EntryFee{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entry_fees": fees})
}
