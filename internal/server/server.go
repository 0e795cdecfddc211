package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hartwellkc/clubsite/internal/email"
	"github.com/hartwellkc/clubsite/internal/handler"
	"github.com/hartwellkc/clubsite/internal/middleware"
	"github.com/hartwellkc/clubsite/internal/reconcile"
	"github.com/hartwellkc/clubsite/internal/store"
	clubstripe "github.com/hartwellkc/clubsite/internal/stripe"
	"github.com/hartwellkc/clubsite/internal/ws"
)

type Config struct {
	Stripe      clubstripe.Config
	BaseURL     string
	TokenSecret string
	EmailClient *email.Client
}

type Server struct {
	db          *sql.DB
	members     *store.MemberStore
	types       *store.MembershipTypeStore
	payments    *store.PaymentStore
	entries     *store.EntryFeeStore
	sessions    *store.SessionStore
	authCodes   *store.AuthCodeStore
	events      *store.WebhookEventStore
	rec         *reconcile.Reconciler
	hub         *ws.Hub
	webhookH    *handler.WebhookHandler
	checkoutH   *handler.CheckoutHandler
	adminH      *handler.AdminHandler
	authH       *handler.AuthHandler
	memberH     *handler.MemberHandler
	stripeC     *clubstripe.Client
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	members := store.NewMemberStore(db)
	types := store.NewMembershipTypeStore(db)
	payments := store.NewPaymentStore(db)
	entries := store.NewEntryFeeStore(db)
	sessions := store.NewSessionStore(db)
	authCodes := store.NewAuthCodeStore(db)
	events := store.NewWebhookEventStore(db)

	var stripeC *clubstripe.Client
	if cfg.Stripe.SecretKey != "" {
		var err error
		stripeC, err = clubstripe.NewClient(cfg.Stripe)
		if err != nil {
			return nil, err
		}
	}

	hub := ws.NewHub(logger.With("component", "ws"))
	rec := reconcile.New(payments, members, types, entries, cfg.EmailClient, hub,
		logger.With("component", "reconcile"))

	// The webhook handler is always built: an unconfigured deployment still
	// answers the route, with a server error instead of a silent 404.
	webhookH := handler.NewWebhookHandler(nil, events, rec, logger.With("component", "webhook"))
	var checkoutH *handler.CheckoutHandler
	var adminH *handler.AdminHandler
	if stripeC != nil {
		webhookH = handler.NewWebhookHandler(stripeC, events, rec, logger.With("component", "webhook"))
		checkoutH = handler.NewCheckoutHandler(stripeC, members, types, payments, entries,
			cfg.BaseURL, logger.With("component", "checkout"))
		adminH = handler.NewAdminHandler(stripeC, payments, logger.With("component", "admin"))
	}

	authH := handler.NewAuthHandler(members, sessions, authCodes, cfg.EmailClient,
		cfg.TokenSecret, logger.With("component", "auth"))
	memberH := handler.NewMemberHandler(members, types, payments, entries,
		logger.With("component", "member"))

	return &Server{
		db:          db,
		members:     members,
		types:       types,
		payments:    payments,
		entries:     entries,
		sessions:    sessions,
		authCodes:   authCodes,
		events:      events,
		rec:         rec,
		hub:         hub,
		webhookH:    webhookH,
		checkoutH:   checkoutH,
		adminH:      adminH,
		authH:       authH,
		memberH:     memberH,
		stripeC:     stripeC,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}, nil
}

// Reconciler returns the shared reconciler for the background sweep.
func (s *Server) Reconciler() *reconcile.Reconciler {
	return s.rec
}

// Payments returns the payment store for the background sweep.
func (s *Server) Payments() *store.PaymentStore {
	return s.payments
}

// Gateway returns the configured gateway client, or nil.
func (s *Server) Gateway() *clubstripe.Client {
	return s.stripeC
}

// Webhook audit rows are kept long enough to investigate a disputed
// delivery, then dropped so the table does not grow with traffic forever.
const webhookEventRetentionDays = 90

// CleanupExpired deletes expired sessions, spent auth codes, and aged
// webhook audit rows, and evicts idle rate limiter entries. Run
// periodically from main.
func (s *Server) CleanupExpired() {
	if n, err := s.sessions.DeleteExpired(); err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	if n, err := s.authCodes.DeleteExpired(); err != nil {
		s.logger.Error("cleanup expired auth codes", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired auth codes", "count", n)
	}
	if n, err := s.events.Prune(webhookEventRetentionDays); err != nil {
		s.logger.Error("prune webhook events", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned webhook events", "count", n)
	}
	s.rateLimiter.Cleanup()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)

	// Public, unauthenticated
	mux.HandleFunc("GET /api/membership-types", s.memberH.ListMembershipTypes)

	// Auth (public, rate-limited where it sends mail)
	mux.HandleFunc("POST /auth/register", s.rateLimited(s.authH.Register))
	mux.HandleFunc("GET /auth/confirm", s.authH.Confirm)
	mux.HandleFunc("POST /auth/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /auth/callback", s.authH.Callback)

	// Payment gateway webhook (public, no auth: authenticity comes from the
	// signature over the raw body)
	mux.HandleFunc("POST /webhooks/payment", s.webhookH.HandlePaymentWebhook)

	// Member routes
	authMw := middleware.RequireAuth(s.sessions, s.members)
	mux.Handle("POST /logout", authMw(http.HandlerFunc(s.authH.Logout)))
	mux.Handle("GET /api/me", authMw(http.HandlerFunc(s.memberH.Me)))
	mux.Handle("GET /api/payments", authMw(http.HandlerFunc(s.memberH.ListPayments)))
	mux.Handle("GET /api/entries", authMw(http.HandlerFunc(s.memberH.ListEntries)))

	// Checkout resolves the session itself rather than requiring it up
	// front: the handler reports an empty selection before the sign-in
	// check, and a rejecting middleware would invert that order.
	if s.checkoutH != nil {
		resolveMw := middleware.ResolveMember(s.sessions, s.members)
		mux.Handle("POST /api/checkout",
			resolveMw(middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)(
				http.HandlerFunc(s.checkoutH.CreateCheckoutSession))))
	}

	// Admin routes
	if s.adminH != nil {
		mux.Handle("GET /api/admin/payments", authMw(middleware.RequireAdmin(http.HandlerFunc(s.adminH.ListPayments))))
		mux.Handle("POST /api/admin/refund", authMw(middleware.RequireAdmin(http.HandlerFunc(s.adminH.ProcessRefund))))
	}
	mux.Handle("GET /ws/admin", authMw(middleware.RequireAdmin(ws.Handler(s.hub, s.logger.With("component", "ws")))))

	return mux
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
