package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/hartwellkc/clubsite/internal/store"
)

// sessionFetcher is the slice of the gateway client the sweep needs.
type sessionFetcher interface {
	GetCheckoutSession(id string) (*stripe.CheckoutSession, error)
}

// Sweeper periodically reconciles payments stuck in pending against the
// gateway. Checkout sessions expire on the gateway's clock; without the sweep
// a payment whose webhook never arrived would stay pending forever.
type Sweeper struct {
	payments   *store.PaymentStore
	rec        *Reconciler
	gateway    sessionFetcher
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewSweeper(payments *store.PaymentStore, rec *Reconciler, gateway sessionFetcher, interval, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if staleAfter <= 0 {
		// Gateway checkout sessions expire after 24 hours.
		staleAfter = 25 * time.Hour
	}
	return &Sweeper{
		payments:   payments,
		rec:        rec,
		gateway:    gateway,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.logger.Error("reconciliation sweep", "error", err)
			} else if n > 0 {
				s.logger.Info("reconciliation sweep", "reconciled", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep fetches each stale pending payment's checkout session from the
// gateway and settles it: paid sessions complete through the same idempotent
// path as the webhook, expired sessions are failed. Returns the number of
// payments settled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.payments.ListStalePending(time.Now().UTC().Add(-s.staleAfter))
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range stale {
		sess, err := s.fetchSession(ctx, p.StripeCheckoutSessionID)
		if err != nil {
			s.logger.Error("fetch checkout session", "session_id", p.StripeCheckoutSessionID, "error", err)
			continue
		}

		switch {
		case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
			intentID := ""
			if sess.PaymentIntent != nil {
				intentID = sess.PaymentIntent.ID
			}
			if err := s.rec.CompleteCheckout(sess.ID, intentID); err != nil {
				s.logger.Error("complete swept payment", "session_id", sess.ID, "error", err)
				continue
			}
			settled++
		case sess.Status == stripe.CheckoutSessionStatusExpired:
			if err := s.rec.ExpireSession(sess.ID); err != nil {
				s.logger.Error("expire swept payment", "session_id", sess.ID, "error", err)
				continue
			}
			settled++
		case sess.PaymentIntent != nil:
			// Still open, but the gateway has already attached an intent.
			// Backfill it so a later payment_intent.payment_failed event
			// can find this row; pending rows otherwise carry no intent id
			// until the session completes.
			if err := s.payments.SetIntentID(sess.ID, sess.PaymentIntent.ID); err != nil {
				s.logger.Error("backfill payment intent id", "session_id", sess.ID, "error", err)
			}
		}
	}
	return settled, nil
}

func (s *Sweeper) fetchSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	var sess *stripe.CheckoutSession
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		sess, err = s.gateway.GetCheckoutSession(sessionID)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return sess, err
}
