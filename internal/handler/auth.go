package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hartwellkc/clubsite/internal/email"
	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
)

const clubSessionCookie = "club_session"

type AuthHandler struct {
	members     *store.MemberStore
	sessions    *store.SessionStore
	authCodes   *store.AuthCodeStore
	mail        *email.Client
	tokenSecret string
	logger      *slog.Logger
}

func NewAuthHandler(
	members *store.MemberStore,
	sessions *store.SessionStore,
	authCodes *store.AuthCodeStore,
	mail *email.Client,
	tokenSecret string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		members:     members,
		sessions:    sessions,
		authCodes:   authCodes,
		mail:        mail,
		tokenSecret: tokenSecret,
		logger:      logger,
	}
}

// Register creates a pending member and emails a confirmation link. The
// response is the same whether or not the email was already registered, to
// avoid account enumeration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/register?error=invalid", http.StatusSeeOther)
		return
	}
	addr := r.FormValue("email")
	name := r.FormValue("name")
	if addr == "" {
		http.Redirect(w, r, "/register?error=email_required", http.StatusSeeOther)
		return
	}

	member, err := h.members.GetByEmail(addr)
	if err != nil {
		h.logger.Error("get member", "error", err)
	}
	if member == nil {
		member, err = h.members.Create(addr, name)
		if err != nil {
			h.logger.Error("create member", "error", err)
			http.Redirect(w, r, "/register?check_email=1", http.StatusSeeOther)
			return
		}
	}

	token, err := h.confirmToken(member.Email)
	if err != nil {
		h.logger.Error("sign confirm token", "error", err)
		http.Redirect(w, r, "/register?check_email=1", http.StatusSeeOther)
		return
	}
	h.deliverConfirm(member.Email, token)

	http.Redirect(w, r, "/register?check_email=1", http.StatusSeeOther)
}

// Confirm verifies an email-confirmation token from the link sent at
// registration, then redirects to the login page with a success flag.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	tokenHash := r.URL.Query().Get("token_hash")
	confirmType := r.URL.Query().Get("type")

	addr, err := h.parseConfirmToken(tokenHash, confirmType)
	if err != nil {
		h.logger.Warn("confirm token rejected", "error", err)
		http.Redirect(w, r, "/register?error=confirm", http.StatusSeeOther)
		return
	}

	member, err := h.members.GetByEmail(addr)
	if err != nil || member == nil {
		h.logger.Error("get member for confirm", "error", err)
		http.Redirect(w, r, "/register?error=confirm", http.StatusSeeOther)
		return
	}
	if err := h.members.ConfirmEmail(member.ID); err != nil {
		h.logger.Error("confirm email", "member_id", member.ID, "error", err)
		http.Redirect(w, r, "/register?error=confirm", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/login?verified=1", http.StatusSeeOther)
}

// Login emails a one-time sign-in link. Always lands on the check-email page
// to avoid account enumeration.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=invalid", http.StatusSeeOther)
		return
	}
	addr := r.FormValue("email")
	if addr == "" {
		http.Redirect(w, r, "/login?error=email_required", http.StatusSeeOther)
		return
	}

	member, err := h.members.GetByEmail(addr)
	if err != nil {
		h.logger.Error("get member", "error", err)
	}
	if member != nil {
		code, err := h.authCodes.Create(member.ID)
		if err != nil {
			h.logger.Error("create auth code", "member_id", member.ID, "error", err)
		} else if h.mail != nil && h.mail.Configured() {
			if err := h.mail.SendLoginLink(member.Email, code.Code); err != nil {
				h.logger.Error("send login link", "error", err)
			}
		} else {
			h.logger.Info("login code generated", "email", member.Email, "code", code.Code)
		}
	}

	http.Redirect(w, r, "/login?check_email=1", http.StatusSeeOther)
}

// Callback exchanges a one-time code for a session and routes the member to
// the right landing page for their role.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	memberID, err := h.authCodes.Exchange(code)
	if err != nil {
		h.logger.Error("exchange auth code", "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if memberID == 0 {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	member, err := h.members.GetByID(memberID)
	if err != nil || member == nil {
		h.logger.Error("get member for callback", "member_id", memberID, "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	sess, err := h.sessions.Create(member.ID)
	if err != nil {
		h.logger.Error("create session", "member_id", member.ID, "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     clubSessionCookie,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	target := "/portal"
	if member.Role == model.RoleAdmin {
		target = "/admin"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(clubSessionCookie)
	if err == nil && cookie.Value != "" {
		sess, err := h.sessions.GetByToken(cookie.Value)
		if err == nil && sess != nil {
			h.sessions.Delete(sess.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     clubSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) deliverConfirm(addr, token string) {
	if h.mail != nil && h.mail.Configured() {
		if err := h.mail.SendConfirmLink(addr, token); err != nil {
			h.logger.Error("send confirm link", "error", err)
		}
		return
	}
	h.logger.Info("confirm token generated", "email", addr, "token", token)
}

func (h *AuthHandler) confirmToken(addr string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     addr,
		"purpose": "signup",
		"iat":     now.Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.tokenSecret))
}

func (h *AuthHandler) parseConfirmToken(tokenHash, confirmType string) (string, error) {
	if tokenHash == "" {
		return "", errors.New("missing token")
	}
	tok, err := jwt.Parse(tokenHash, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.tokenSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	purpose, _ := claims["purpose"].(string)
	if purpose == "" || purpose != confirmType {
		return "", fmt.Errorf("token purpose %q does not match %q", purpose, confirmType)
	}
	addr, _ := claims["sub"].(string)
	if addr == "" {
		return "", errors.New("token missing subject")
	}
	return addr, nil
}
