package reconcile

import (
	"database/sql"
	"log/slog"
	"testing"

	"github.com/hartwellkc/clubsite/internal/database"
	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
	"github.com/hartwellkc/clubsite/internal/ws"
)

type testEnv struct {
	db       *sql.DB
	members  *store.MemberStore
	types    *store.MembershipTypeStore
	payments *store.PaymentStore
	entries  *store.EntryFeeStore
	hub      *ws.Hub
	rec      *Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	env := &testEnv{
		db:       db,
		members:  store.NewMemberStore(db),
		types:    store.NewMembershipTypeStore(db),
		payments: store.NewPaymentStore(db),
		entries:  store.NewEntryFeeStore(db),
		hub:      ws.NewHub(logger),
	}
	env.rec = New(env.payments, env.members, env.types, env.entries, nil, env.hub, logger)
	return env
}

func (env *testEnv) seedDuesPayment(t *testing.T, sessionID string) *model.Payment {
	t.Helper()
	m, err := env.members.Create("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	slug := "adult-annual"
	p, err := env.payments.Create(store.CreateParams{
		MemberID:           m.ID,
		AmountCents:        7500,
		PaymentType:        model.PaymentTypeDues,
		MembershipTypeSlug: &slug,
		Description:        "Adult Annual membership",
		CheckoutSessionID:  sessionID,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

func TestCompleteCheckoutActivatesMembership(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedDuesPayment(t, "cs_1")

	if err := env.rec.CompleteCheckout("cs_1", "pi_1"); err != nil {
		t.Fatalf("complete checkout: %v", err)
	}

	got, _ := env.payments.GetByID(p.ID)
	if got.Status != model.PaymentSucceeded {
		t.Errorf("payment status = %q, want succeeded", got.Status)
	}
	m, _ := env.members.GetByID(p.MemberID)
	if m.MembershipStatus != model.MembershipActive {
		t.Errorf("membership status = %q, want active", m.MembershipStatus)
	}
	if m.MembershipTypeSlug == nil || *m.MembershipTypeSlug != "adult-annual" {
		t.Errorf("type slug = %v", m.MembershipTypeSlug)
	}
}

func TestCompleteCheckoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedDuesPayment(t, "cs_1")

	if err := env.rec.CompleteCheckout("cs_1", "pi_1"); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	first, _ := env.members.GetByID(p.MemberID)

	if err := env.rec.CompleteCheckout("cs_1", "pi_1"); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	second, _ := env.members.GetByID(p.MemberID)

	if !second.MembershipExpiresAt.Equal(*first.MembershipExpiresAt) {
		t.Errorf("expiry moved from %v to %v on a duplicate delivery",
			first.MembershipExpiresAt, second.MembershipExpiresAt)
	}
}

func TestCompleteCheckoutUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	// No payment row: nothing to transition, nothing to fail loudly over.
	if err := env.rec.CompleteCheckout("cs_unknown", "pi_1"); err != nil {
		t.Errorf("complete unknown session: %v", err)
	}
}

func TestCompleteCheckoutMarksEntryFeesPaid(t *testing.T) {
	env := newTestEnv(t)
	m, _ := env.members.Create("alice@example.com", "Alice")
	a, _ := env.entries.Create(m.ID, "Spring Classic", "Open Dog", 2500)
	b, _ := env.entries.Create(m.ID, "Spring Classic", "Open Bitch", 3000)
	p, err := env.payments.Create(store.CreateParams{
		MemberID:          m.ID,
		AmountCents:       5500,
		PaymentType:       model.PaymentTypeEntries,
		Description:       "Show entry fees (2 entries)",
		CheckoutSessionID: "cs_entries",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	env.entries.AttachPayment([]int64{a.ID, b.ID}, p.ID)

	if err := env.rec.CompleteCheckout("cs_entries", "pi_1"); err != nil {
		t.Fatalf("complete checkout: %v", err)
	}

	unpaid, _ := env.entries.ListUnpaidByMember(m.ID)
	if len(unpaid) != 0 {
		t.Errorf("%d fees still unpaid after completion", len(unpaid))
	}

	// Entry fee payments must not touch membership state.
	member, _ := env.members.GetByID(m.ID)
	if member.MembershipStatus != model.MembershipPending {
		t.Errorf("membership status = %q, want untouched pending", member.MembershipStatus)
	}
}

func TestFailPayment(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedDuesPayment(t, "cs_1")
	env.payments.SetIntentID("cs_1", "pi_1")

	if err := env.rec.FailPayment("pi_1", "card_declined"); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	got, _ := env.payments.GetByID(p.ID)
	if got.Status != model.PaymentFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}

	m, _ := env.members.GetByID(p.MemberID)
	if m.MembershipStatus != model.MembershipPending {
		t.Errorf("membership status = %q, want untouched", m.MembershipStatus)
	}
}

func TestFailPaymentUnknownIntent(t *testing.T) {
	env := newTestEnv(t)

	if err := env.rec.FailPayment("pi_unknown", "card_declined"); err != nil {
		t.Errorf("fail unknown intent: %v", err)
	}
}

func TestExpireSessionLeavesCompletedAlone(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedDuesPayment(t, "cs_1")
	env.rec.CompleteCheckout("cs_1", "pi_1")

	if err := env.rec.ExpireSession("cs_1"); err != nil {
		t.Fatalf("expire session: %v", err)
	}
	got, _ := env.payments.GetByID(p.ID)
	if got.Status != model.PaymentSucceeded {
		t.Errorf("status = %q, a completed payment must not be expired", got.Status)
	}
}
