package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
	clubstripe "github.com/hartwellkc/clubsite/internal/stripe"
)

// checkoutGateway is the slice of the gateway client checkout needs.
type checkoutGateway interface {
	CreateCustomer(email, name string, memberID int64) (string, error)
	CreateCheckoutSession(p clubstripe.CheckoutParams) (*stripe.CheckoutSession, error)
}

type CheckoutHandler struct {
	gateway  checkoutGateway
	members  *store.MemberStore
	types    *store.MembershipTypeStore
	payments *store.PaymentStore
	entries  *store.EntryFeeStore
	baseURL  string
	logger   *slog.Logger
}

func NewCheckoutHandler(
	gw checkoutGateway,
	members *store.MemberStore,
	types *store.MembershipTypeStore,
	payments *store.PaymentStore,
	entries *store.EntryFeeStore,
	baseURL string,
	logger *slog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		gateway:  gw,
		members:  members,
		types:    types,
		payments: payments,
		entries:  entries,
		baseURL:  baseURL,
		logger:   logger,
	}
}

type checkoutRequest struct {
	MembershipType string  `json:"membership_type"`
	EntryFeeIDs    []int64 `json:"entry_fee_ids"`
}

// classifyPayment returns the payment type for a membership purchase based on
// the member's current status. Active and expired members are renewing;
// everyone else (notably pending) is paying initial dues.
func classifyPayment(status string) string {
	switch status {
	case model.MembershipActive, model.MembershipExpired:
		return model.PaymentTypeRenewal
	default:
		return model.PaymentTypeDues
	}
}

// CreateCheckoutSession validates the member's product selection, resolves a
// gateway customer, creates a gateway checkout session, persists a pending
// payment mirroring it, and returns the hosted checkout URL.
//
// The selection is validated before the session: an empty selector is a
// caller error in its own right, and reporting it should not depend on
// whether the caller happens to be signed in.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.MembershipType == "" && len(req.EntryFeeIDs) == 0 {
		respondError(w, http.StatusBadRequest, "selection required")
		return
	}

	memberID := MemberIDFromContext(r.Context())
	if memberID == 0 {
		respondError(w, http.StatusUnauthorized, "sign-in required")
		return
	}

	member, err := h.members.GetByID(memberID)
	if err != nil || member == nil {
		if err != nil {
			h.logger.Error("load member", "member_id", memberID, "error", err)
		}
		respondError(w, http.StatusNotFound, "profile unavailable")
		return
	}

	var (
		amountCents int64
		paymentType string
		product     string
		description string
		typeSlug    *string
		cancelPath  string
	)

	if req.MembershipType != "" {
		mt, err := h.types.GetBySlug(req.MembershipType)
		if err != nil {
			h.logger.Error("load membership type", "slug", req.MembershipType, "error", err)
			respondError(w, http.StatusNotFound, "not available")
			return
		}
		if mt == nil || !mt.IsActive {
			respondError(w, http.StatusNotFound, "not available")
			return
		}
		if mt.PriceCents <= 0 {
			respondError(w, http.StatusBadRequest, "no payment required")
			return
		}
		amountCents = mt.PriceCents
		paymentType = classifyPayment(member.MembershipStatus)
		product = mt.Slug
		description = mt.Name + " membership"
		typeSlug = &mt.Slug
		cancelPath = "/portal/membership?checkout=cancelled"
	} else {
		fees, err := h.entries.GetUnpaidForMember(req.EntryFeeIDs, memberID)
		if err != nil {
			h.logger.Error("load entry fees", "member_id", memberID, "error", err)
			respondError(w, http.StatusNotFound, "not available")
			return
		}
		if fees == nil {
			respondError(w, http.StatusNotFound, "not available")
			return
		}
		for _, f := range fees {
			amountCents += f.AmountCents
		}
		if amountCents <= 0 {
			respondError(w, http.StatusBadRequest, "no payment required")
			return
		}
		paymentType = model.PaymentTypeEntries
		product = entryFeeProduct(req.EntryFeeIDs)
		description = fmt.Sprintf("Show entry fees (%d entries)", len(fees))
		cancelPath = "/portal/entries?checkout=cancelled"
	}

	customerID, err := h.resolveCustomer(member)
	if err != nil {
		h.logger.Error("resolve gateway customer", "member_id", memberID, "error", err)
		respondError(w, http.StatusBadGateway, "payment service unavailable, please try again")
		return
	}

	sess, err := h.gateway.CreateCheckoutSession(clubstripe.CheckoutParams{
		CustomerID:  customerID,
		AmountCents: amountCents,
		Description: description,
		Metadata: map[string]string{
			"member_id":    strconv.FormatInt(member.ID, 10),
			"product":      product,
			"payment_type": paymentType,
		},
		SuccessURL: h.baseURL + "/portal/payments?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.baseURL + cancelPath,
	})
	if err != nil {
		h.logger.Error("create checkout session", "member_id", memberID, "error", err)
		respondError(w, http.StatusBadGateway, "payment service unavailable, please try again")
		return
	}
	if sess.URL == "" {
		h.logger.Error("checkout session missing url", "member_id", memberID, "session_id", sess.ID)
		respondError(w, http.StatusBadGateway, "payment service unavailable, please try again")
		return
	}

	// Best effort: the gateway session is authoritative, so a failure to
	// mirror it locally must not abort checkout. The webhook and the
	// reconciliation sweep work from gateway data.
	p, err := h.payments.Create(store.CreateParams{
		MemberID:           member.ID,
		AmountCents:        amountCents,
		PaymentType:        paymentType,
		MembershipTypeSlug: typeSlug,
		Description:        description,
		CheckoutSessionID:  sess.ID,
	})
	if err != nil {
		h.logger.Error("persist pending payment", "member_id", memberID, "session_id", sess.ID, "error", err)
	} else if len(req.EntryFeeIDs) > 0 {
		if err := h.entries.AttachPayment(req.EntryFeeIDs, p.ID); err != nil {
			h.logger.Error("attach entry fees", "payment_id", p.ID, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": sess.URL})
}

// resolveCustomer reuses the member's gateway customer when present, otherwise
// creates one and backfills the id. The backfill is best effort: a stale nil
// just means the customer gets re-resolved on the next attempt.
func (h *CheckoutHandler) resolveCustomer(member *model.Member) (string, error) {
	if member.StripeCustomerID != nil && *member.StripeCustomerID != "" {
		return *member.StripeCustomerID, nil
	}
	customerID, err := h.gateway.CreateCustomer(member.Email, member.Name, member.ID)
	if err != nil {
		return "", err
	}
	if err := h.members.SetStripeCustomerID(member.ID, customerID); err != nil {
		h.logger.Error("persist stripe customer id", "member_id", member.ID, "error", err)
	}
	return customerID, nil
}

func entryFeeProduct(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "entry_fees:" + strings.Join(parts, ",")
}
