package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/hartwellkc/clubsite/internal/reconcile"
	"github.com/hartwellkc/clubsite/internal/store"
)

const maxWebhookBody = 65536

// eventVerifier is the slice of the gateway client the receiver needs.
type eventVerifier interface {
	WebhookConfigured() bool
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type WebhookHandler struct {
	gateway eventVerifier
	events  *store.WebhookEventStore
	rec     *reconcile.Reconciler
	logger  *slog.Logger
}

func NewWebhookHandler(gw eventVerifier, events *store.WebhookEventStore, rec *reconcile.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		gateway: gw,
		events:  events,
		rec:     rec,
		logger:  logger,
	}
}

// HandlePaymentWebhook verifies an inbound gateway event against the raw
// request body and dispatches it. Once the signature checks out the response
// is always 200: the gateway retries non-2xx deliveries, and a retry of an
// event whose local processing failed would fail identically. Local failures
// go to the logs instead.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil || !h.gateway.WebhookConfigured() {
		h.logger.Error("webhook signing secret not configured")
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.gateway.ConstructWebhookEvent(body, sigHeader)
	if err != nil {
		// Reason stays server-side; echoing it would hand an attacker an
		// oracle on the verification scheme.
		h.logger.Warn("webhook signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if seen, err := h.events.Record(event.ID, string(event.Type)); err != nil {
		h.logger.Error("record webhook event", "event_id", event.ID, "error", err)
	} else if seen {
		h.logger.Info("webhook event replayed", "event_id", event.ID, "type", event.Type)
		h.acknowledge(w)
		return
	}

	h.dispatch(event)
	h.acknowledge(w)
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) dispatch(event stripe.Event) {
	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(event)
	case "payment_intent.succeeded":
		err = h.handleIntentSucceeded(event)
	case "payment_intent.payment_failed":
		err = h.handleIntentFailed(event)
	default:
		h.logger.Debug("webhook event ignored", "event_id", event.ID, "type", event.Type)
	}
	if err != nil {
		h.logger.Error("webhook handler failed", "event_id", event.ID, "type", event.Type, "error", err)
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return err
	}
	intentID := ""
	if sess.PaymentIntent != nil {
		intentID = sess.PaymentIntent.ID
	}
	return h.rec.CompleteCheckout(sess.ID, intentID)
}

func (h *WebhookHandler) handleIntentSucceeded(event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return err
	}
	return h.rec.ConfirmIntent(pi.ID)
}

func (h *WebhookHandler) handleIntentFailed(event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return err
	}
	reason := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	return h.rec.FailPayment(pi.ID, reason)
}
