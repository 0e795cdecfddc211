package middleware

import (
	"net/http"
	"strings"

	"github.com/hartwellkc/clubsite/internal/handler"
	"github.com/hartwellkc/clubsite/internal/model"
	"github.com/hartwellkc/clubsite/internal/store"
)

const sessionCookieName = "club_session"

// RequireAuth validates the session cookie and populates the acting member's
// id and role in the request context. API requests get a JSON 401; page
// requests are redirected to the login form.
func RequireAuth(sessions *store.SessionStore, members *store.MemberStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				rejectUnauthenticated(w, r)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				rejectUnauthenticated(w, r)
				return
			}

			m, err := members.GetByID(sess.MemberID)
			if err != nil || m == nil {
				rejectUnauthenticated(w, r)
				return
			}

			ctx := handler.WithMember(r.Context(), m.ID, m.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveMember populates the acting member in the request context when a
// valid session cookie is present, and otherwise passes the request through
// anonymously. For handlers that order their own validation ahead of the
// sign-in check.
func ResolveMember(sessions *store.SessionStore, members *store.MemberStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err == nil && cookie.Value != "" {
				if sess, err := sessions.GetByToken(cookie.Value); err == nil && sess != nil {
					if m, err := members.GetByID(sess.MemberID); err == nil && m != nil {
						r = r.WithContext(handler.WithMember(r.Context(), m.ID, m.Role))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin allows only members with the admin role through. It must be
// stacked inside RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler.RoleFromContext(r.Context()) != model.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"sign-in required"}`))
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
