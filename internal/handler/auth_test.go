package handler

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
)

const testTokenSecret = "test-token-secret"

type authEnv struct {
	handler   *AuthHandler
	members   *store.MemberStore
	sessions  *store.SessionStore
	authCodes *store.AuthCodeStore
	db        *sql.DB
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	db := openTestDB(t)
	env := &authEnv{
		members:   store.NewMemberStore(db),
		sessions:  store.NewSessionStore(db),
		authCodes: store.NewAuthCodeStore(db),
		db:        db,
	}
	env.handler = NewAuthHandler(env.members, env.sessions, env.authCodes,
		nil, testTokenSecret, testLogger())
	return env
}

func postForm(t *testing.T, fn http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	fn(rr, req)
	return rr
}

func TestRegisterCreatesPendingMember(t *testing.T) {
	env := newAuthEnv(t)

	rr := postForm(t, env.handler.Register, "/auth/register",
		url.Values{"email": {"alice@example.com"}, "name": {"Alice"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/register?check_email=1" {
		t.Errorf("redirect = %q", loc)
	}

	m, _ := env.members.GetByEmail("alice@example.com")
	if m == nil {
		t.Fatal("expected member created")
	}
	if m.MembershipStatus != model.MembershipPending {
		t.Errorf("status = %q, want pending", m.MembershipStatus)
	}
}

func TestRegisterExistingEmailSameResponse(t *testing.T) {
	env := newAuthEnv(t)
	env.members.Create("alice@example.com", "Alice")

	rr := postForm(t, env.handler.Register, "/auth/register",
		url.Values{"email": {"alice@example.com"}, "name": {"Alice"}})
	if loc := rr.Header().Get("Location"); loc != "/register?check_email=1" {
		t.Errorf("redirect = %q, want the same page as a fresh registration", loc)
	}
}

func TestConfirmTokenRoundTrip(t *testing.T) {
	env := newAuthEnv(t)
	env.members.Create("alice@example.com", "Alice")

	token, err := env.handler.confirmToken("alice@example.com")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet,
		"/auth/confirm?token_hash="+url.QueryEscape(token)+"&type=signup", nil)
	rr := httptest.NewRecorder()
	env.handler.Confirm(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/login?verified=1" {
		t.Errorf("redirect = %q, want /login?verified=1", loc)
	}
	m, _ := env.members.GetByEmail("alice@example.com")
	if m.EmailConfirmedAt == nil {
		t.Error("expected email confirmed")
	}
}

func TestConfirmPurposeMismatch(t *testing.T) {
	env := newAuthEnv(t)
	env.members.Create("alice@example.com", "Alice")

	token, _ := env.handler.confirmToken("alice@example.com")
	req := httptest.NewRequest(http.MethodGet,
		"/auth/confirm?token_hash="+url.QueryEscape(token)+"&type=recovery", nil)
	rr := httptest.NewRecorder()
	env.handler.Confirm(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/register?error=confirm" {
		t.Errorf("redirect = %q, want error redirect for purpose mismatch", loc)
	}
}

func TestConfirmTamperedToken(t *testing.T) {
	env := newAuthEnv(t)
	env.members.Create("alice@example.com", "Alice")

	token, _ := env.handler.confirmToken("alice@example.com")
	tampered := token[:len(token)-4] + "AAAA"
	req := httptest.NewRequest(http.MethodGet,
		"/auth/confirm?token_hash="+url.QueryEscape(tampered)+"&type=signup", nil)
	rr := httptest.NewRecorder()
	env.handler.Confirm(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/register?error=confirm" {
		t.Errorf("redirect = %q, want error redirect", loc)
	}
	m, _ := env.members.GetByEmail("alice@example.com")
	if m.EmailConfirmedAt != nil {
		t.Error("tampered token must not confirm the email")
	}
}

func TestLoginIssuesCode(t *testing.T) {
	env := newAuthEnv(t)
	m, _ := env.members.Create("alice@example.com", "Alice")

	rr := postForm(t, env.handler.Login, "/auth/login",
		url.Values{"email": {"alice@example.com"}})
	if loc := rr.Header().Get("Location"); loc != "/login?check_email=1" {
		t.Errorf("redirect = %q", loc)
	}

	var count int
	env.db.QueryRow(`SELECT COUNT(*) FROM auth_codes WHERE member_id = ?`, m.ID).Scan(&count)
	if count != 1 {
		t.Errorf("auth codes for member = %d, want 1", count)
	}
}

func TestLoginUnknownEmailSameResponse(t *testing.T) {
	env := newAuthEnv(t)

	rr := postForm(t, env.handler.Login, "/auth/login",
		url.Values{"email": {"nobody@example.com"}})
	if loc := rr.Header().Get("Location"); loc != "/login?check_email=1" {
		t.Errorf("redirect = %q, want the same page as a known email", loc)
	}
}

func TestCallbackExchangesCodeForSession(t *testing.T) {
	env := newAuthEnv(t)
	m, _ := env.members.Create("alice@example.com", "Alice")
	code, _ := env.authCodes.Create(m.ID)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code="+code.Code, nil)
	rr := httptest.NewRecorder()
	env.handler.Callback(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/portal" {
		t.Errorf("redirect = %q, want /portal", loc)
	}

	var sessionCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == clubSessionCookie {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("expected session cookie set")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie must be http-only")
	}

	sess, _ := env.sessions.GetByToken(sessionCookie.Value)
	if sess == nil || sess.MemberID != m.ID {
		t.Errorf("session = %v, want one for member %d", sess, m.ID)
	}
}

func TestCallbackAdminLandsOnAdmin(t *testing.T) {
	env := newAuthEnv(t)
	m, _ := env.members.Create("admin@example.com", "Admin")
	env.members.SetRole(m.ID, model.RoleAdmin)
	code, _ := env.authCodes.Create(m.ID)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code="+code.Code, nil)
	rr := httptest.NewRecorder()
	env.handler.Callback(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/admin" {
		t.Errorf("redirect = %q, want /admin", loc)
	}
}

func TestCallbackReusedCodeRejected(t *testing.T) {
	env := newAuthEnv(t)
	m, _ := env.members.Create("alice@example.com", "Alice")
	code, _ := env.authCodes.Create(m.ID)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code="+code.Code, nil)
	env.handler.Callback(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	env.handler.Callback(rr, httptest.NewRequest(http.MethodGet, "/auth/callback?code="+code.Code, nil))
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Errorf("redirect = %q, want back to /login for a consumed code", loc)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("no cookie should be set for a consumed code")
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newAuthEnv(t)
	m, _ := env.members.Create("alice@example.com", "Alice")
	sess, _ := env.sessions.Create(m.ID)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: clubSessionCookie, Value: sess.Token})
	rr := httptest.NewRecorder()
	env.handler.Logout(rr, req)

	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Errorf("redirect = %q, want /login", loc)
	}
	if got, _ := env.sessions.GetByToken(sess.Token); got != nil {
		t.Error("session should be deleted on logout")
	}

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == clubSessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected the session cookie to be cleared")
	}
}
