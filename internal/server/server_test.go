package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hartwellkc/clubsite/internal/database"
	"github.com/hartwellkc/clubsite/internal/model"
	clubstripe "github.com/hartwellkc/clubsite/internal/stripe"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv, err := New(db, cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, Config{BaseURL: "http://localhost:8080"})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMembershipTypesIsPublic(t *testing.T) {
	srv := newTestServer(t, Config{BaseURL: "http://localhost:8080"})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/membership-types", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want public access", rr.Code)
	}
}

func TestMemberRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t, Config{
		BaseURL: "http://localhost:8080",
		Stripe:  clubstripe.Config{SecretKey: "sk_test_1", WebhookSecret: "whsec_1"},
	})
	router := srv.Router()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/payments"},
		{http.MethodGet, "/api/entries"},
		{http.MethodGet, "/api/admin/payments"},
		{http.MethodPost, "/api/admin/refund"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.path, rr.Code)
		}
	}
}

// The checkout route must not sit behind a rejecting auth middleware: the
// handler reports an empty selection first and the missing sign-in second.
func TestCheckoutRouteValidationOrder(t *testing.T) {
	srv := newTestServer(t, Config{
		BaseURL: "http://localhost:8080",
		Stripe:  clubstripe.Config{SecretKey: "sk_test_1", WebhookSecret: "whsec_1"},
	})
	router := srv.Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("anonymous empty selection: status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "selection required") {
		t.Errorf("body = %s, want selection required", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/checkout",
		strings.NewReader(`{"membership_type":"adult-annual"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous with selection: status = %d, want 401", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sign-in required") {
		t.Errorf("body = %s, want sign-in required", rr.Body.String())
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := newTestServer(t, Config{
		BaseURL: "http://localhost:8080",
		Stripe:  clubstripe.Config{SecretKey: "sk_test_1", WebhookSecret: "whsec_1"},
	})
	router := srv.Router()

	m, _ := srv.members.Create("member@example.com", "Member")
	sess, _ := srv.sessions.Create(m.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/payments", nil)
	req.AddCookie(&http.Cookie{Name: "club_session", Value: sess.Token})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("member on admin route: status = %d, want 403", rr.Code)
	}

	srv.members.SetRole(m.ID, model.RoleAdmin)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/payments", nil)
	req.AddCookie(&http.Cookie{Name: "club_session", Value: sess.Token})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("admin on admin route: status = %d, want 200", rr.Code)
	}
}

func TestPaymentRoutesWithoutGateway(t *testing.T) {
	srv := newTestServer(t, Config{BaseURL: "http://localhost:8080"})
	router := srv.Router()

	// The webhook route stays registered so a misconfigured deployment
	// surfaces as a server error, not a 404 the gateway retries forever.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("webhook route without gateway: status = %d, want 500", rr.Code)
	}

	m, _ := srv.members.Create("member@example.com", "Member")
	sess, _ := srv.sessions.Create(m.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{"membership_type":"adult-annual"}`))
	req.AddCookie(&http.Cookie{Name: "club_session", Value: sess.Token})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("checkout route without gateway: status = %d, want 404", rr.Code)
	}
}

func TestCleanupExpiredPrunesWebhookEvents(t *testing.T) {
	srv := newTestServer(t, Config{BaseURL: "http://localhost:8080"})

	for _, id := range []string{"evt_old", "evt_recent"} {
		if _, err := srv.events.Record(id, "checkout.session.completed"); err != nil {
			t.Fatalf("record event: %v", err)
		}
	}
	if _, err := srv.db.Exec(
		`UPDATE webhook_events SET processed_at = datetime('now', '-120 days') WHERE event_id = 'evt_old'`,
	); err != nil {
		t.Fatalf("age event: %v", err)
	}

	srv.CleanupExpired()

	var n int
	if err := srv.db.QueryRow(`SELECT COUNT(*) FROM webhook_events`).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 1 {
		t.Errorf("webhook_events rows = %d, want only the recent one kept", n)
	}
	var id string
	if err := srv.db.QueryRow(`SELECT event_id FROM webhook_events`).Scan(&id); err != nil {
		t.Fatalf("read surviving event: %v", err)
	}
	if id != "evt_recent" {
		t.Errorf("surviving event = %q, want evt_recent", id)
	}
}

func TestCleanupExpiredDeletesStaleSessions(t *testing.T) {
	srv := newTestServer(t, Config{BaseURL: "http://localhost:8080"})

	m, _ := srv.members.Create("member@example.com", "Member")
	sess, _ := srv.sessions.Create(m.ID)
	if _, err := srv.db.Exec(
		`UPDATE sessions SET expires_at = datetime('now', '-1 day') WHERE token = ?`, sess.Token,
	); err != nil {
		t.Fatalf("age session: %v", err)
	}

	srv.CleanupExpired()

	got, err := srv.sessions.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != nil {
		t.Error("expired session should have been deleted")
	}
}
