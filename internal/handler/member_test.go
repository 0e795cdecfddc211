package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
)

func newMemberEnv(t *testing.T) (*MemberHandler, *store.MemberStore, *store.PaymentStore) {
	t.Helper()
	db := openTestDB(t)
	members := store.NewMemberStore(db)
	types := store.NewMembershipTypeStore(db)
	payments := store.NewPaymentStore(db)
	entries := store.NewEntryFeeStore(db)
	h := NewMemberHandler(members, types, payments, entries, testLogger())
	return h, members, payments
}

func getAs(t *testing.T, fn http.HandlerFunc, path string, memberID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if memberID != 0 {
		req = req.WithContext(WithMember(req.Context(), memberID, model.RoleMember))
	}
	rr := httptest.NewRecorder()
	fn(rr, req)
	return rr
}

func TestMe(t *testing.T) {
	h, members, _ := newMemberEnv(t)
	m, _ := members.Create("alice@example.com", "Alice")

	rr := getAs(t, h.Me, "/api/me", m.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "alice@example.com") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestListMembershipTypesPublic(t *testing.T) {
	h, _, _ := newMemberEnv(t)

	rr := getAs(t, h.ListMembershipTypes, "/api/membership-types", 0)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "adult-annual") {
		t.Errorf("body missing seeded type: %s", rr.Body.String())
	}
}

func TestListPaymentsScopedToMember(t *testing.T) {
	h, members, payments := newMemberEnv(t)
	alice, _ := members.Create("alice@example.com", "Alice")
	bob, _ := members.Create("bob@example.com", "Bob")
	payments.Create(store.CreateParams{
		MemberID: alice.ID, AmountCents: 7500,
		PaymentType: model.PaymentTypeDues, Description: "alice dues",
		CheckoutSessionID: "cs_alice",
	})
	payments.Create(store.CreateParams{
		MemberID: bob.ID, AmountCents: 7500,
		PaymentType: model.PaymentTypeDues, Description: "bob dues",
		CheckoutSessionID: "cs_bob",
	})

	rr := getAs(t, h.ListPayments, "/api/payments", alice.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "cs_alice") {
		t.Error("own payment missing from list")
	}
	if strings.Contains(body, "cs_bob") {
		t.Error("another member's payment leaked into the list")
	}
}

func TestListPaymentsEmpty(t *testing.T) {
	h, members, _ := newMemberEnv(t)
	m, _ := members.Create("alice@example.com", "Alice")

	rr := getAs(t, h.ListPayments, "/api/payments", m.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"payments":[]`) {
		t.Errorf("body = %s, want empty array not null", rr.Body.String())
	}
}
