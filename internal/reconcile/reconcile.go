// Package reconcile brings local payment and membership state into agreement
// with the payment gateway's authoritative record. The webhook receiver and
// the background sweep both funnel through the Reconciler so state
// transitions stay idempotent regardless of which path observes an event
// first, or how many times it is observed.
package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/hartwellkc/clubsite/internal/email"
	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
	"github.com/hartwellkc/clubsite/internal/ws"
)

type Reconciler struct {
	payments *store.PaymentStore
	members  *store.MemberStore
	types    *store.MembershipTypeStore
	entries  *store.EntryFeeStore
	mail     *email.Client
	hub      *ws.Hub
	logger   *slog.Logger
}

func New(
	payments *store.PaymentStore,
	members *store.MemberStore,
	types *store.MembershipTypeStore,
	entries *store.EntryFeeStore,
	mail *email.Client,
	hub *ws.Hub,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		payments: payments,
		members:  members,
		types:    types,
		entries:  entries,
		mail:     mail,
		hub:      hub,
		logger:   logger,
	}
}

// CompleteCheckout marks the payment for a checkout session succeeded and
// applies the downstream effects: membership activation for dues/renewal
// payments, entry fees marked paid, receipt email, admin feed broadcast.
// The status transition is a conditional update, so a second delivery of the
// same session id is absorbed without re-applying any effect.
func (r *Reconciler) CompleteCheckout(sessionID, intentID string) error {
	updated, err := r.payments.MarkSucceeded(sessionID, intentID)
	if err != nil {
		return err
	}
	if !updated {
		r.logger.Debug("payment already reconciled", "session_id", sessionID)
		return nil
	}

	p, err := r.payments.GetBySessionID(sessionID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no payment for session %s", sessionID)
	}

	switch p.PaymentType {
	case model.PaymentTypeDues, model.PaymentTypeRenewal:
		if p.MembershipTypeSlug == nil {
			r.logger.Error("membership payment missing type slug", "payment_id", p.ID)
			break
		}
		mt, err := r.types.GetBySlug(*p.MembershipTypeSlug)
		if err != nil {
			return err
		}
		if mt == nil {
			return fmt.Errorf("unknown membership type %q for payment %d", *p.MembershipTypeSlug, p.ID)
		}
		if err := r.members.ActivateMembership(p.MemberID, mt.Slug, mt.DurationMonths); err != nil {
			return err
		}
	case model.PaymentTypeEntries:
		n, err := r.entries.MarkPaidByPayment(p.ID)
		if err != nil {
			return err
		}
		r.logger.Info("entry fees paid", "payment_id", p.ID, "count", n)
	}

	r.sendReceipt(p)
	r.broadcast("succeeded", p)
	r.logger.Info("payment succeeded", "payment_id", p.ID, "session_id", sessionID,
		"type", p.PaymentType, "amount_cents", p.AmountCents)
	return nil
}

// ConfirmIntent notes a succeeded payment intent. The intent id is normally
// recorded when the session completes; an event with no matching row is
// logged and dropped.
func (r *Reconciler) ConfirmIntent(intentID string) error {
	p, err := r.payments.GetByIntentID(intentID)
	if err != nil {
		return err
	}
	if p == nil {
		r.logger.Debug("no payment for intent", "intent_id", intentID)
	}
	return nil
}

// FailPayment marks the pending payment for a payment intent failed,
// retaining the gateway's failure reason for display and audit.
func (r *Reconciler) FailPayment(intentID, reason string) error {
	updated, err := r.payments.MarkFailedByIntent(intentID, reason)
	if err != nil {
		return err
	}
	if !updated {
		r.logger.Debug("no pending payment for failed intent", "intent_id", intentID)
		return nil
	}
	if p, err := r.payments.GetByIntentID(intentID); err == nil && p != nil {
		r.broadcast("failed", p)
	}
	r.logger.Info("payment failed", "intent_id", intentID, "reason", reason)
	return nil
}

// ExpireSession fails the payment for a checkout session the gateway reports
// as expired. Used by the sweep; a session that completed in the meantime is
// left alone by the conditional update.
func (r *Reconciler) ExpireSession(sessionID string) error {
	updated, err := r.payments.MarkExpired(sessionID)
	if err != nil {
		return err
	}
	if updated {
		r.logger.Info("payment expired", "session_id", sessionID)
		if p, err := r.payments.GetBySessionID(sessionID); err == nil && p != nil {
			r.broadcast("failed", p)
		}
	}
	return nil
}

func (r *Reconciler) sendReceipt(p *model.Payment) {
	m, err := r.members.GetByID(p.MemberID)
	if err != nil || m == nil {
		r.logger.Error("load member for receipt", "payment_id", p.ID, "error", err)
		return
	}
	if r.mail == nil || !r.mail.Configured() {
		r.logger.Info("receipt email skipped", "payment_id", p.ID, "email", m.Email)
		return
	}
	if err := r.mail.SendReceipt(m.Email, m.Name, p.Description, p.AmountCents); err != nil {
		r.logger.Error("send receipt", "payment_id", p.ID, "error", err)
	}
}

func (r *Reconciler) broadcast(action string, p *model.Payment) {
	if r.hub == nil {
		return
	}
	r.hub.Broadcast(ws.PaymentMessage(action, p.ID, map[string]any{
		"member_id":    p.MemberID,
		"payment_type": p.PaymentType,
		"amount_cents": p.AmountCents,
	}))
}
