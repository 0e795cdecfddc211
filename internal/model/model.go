package model

import "time"

// Membership statuses.
const (
	MembershipPending   = "pending"
	MembershipActive    = "active"
	MembershipExpired   = "expired"
	MembershipSuspended = "suspended"
)

// Member roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Payment types.
const (
	PaymentTypeDues    = "membership_dues"
	PaymentTypeRenewal = "membership_renewal"
	PaymentTypeEntries = "entry_fees"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

type Member struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Phone               *string    `json:"phone"`
	Address             *string    `json:"address"`
	Role                string     `json:"role"`
	MembershipTypeSlug  *string    `json:"membership_type_slug"`
	MembershipStatus    string     `json:"membership_status"`
	MembershipStartedAt *time.Time `json:"membership_started_at"`
	MembershipExpiresAt *time.Time `json:"membership_expires_at"`
	StripeCustomerID    *string    `json:"stripe_customer_id"`
	EmailConfirmedAt    *time.Time `json:"email_confirmed_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type MembershipType struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	PriceCents     int64     `json:"price_cents"`
	DurationMonths *int64    `json:"duration_months"` // nil = lifetime
	Benefits       string    `json:"benefits"`
	SortOrder      int64     `json:"sort_order"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Payment struct {
	ID                      int64     `json:"id"`
	MemberID                int64     `json:"member_id"`
	AmountCents             int64     `json:"amount_cents"`
	PaymentType             string    `json:"payment_type"`
	MembershipTypeSlug      *string   `json:"membership_type_slug"`
	Description             string    `json:"description"`
	StripeCheckoutSessionID string    `json:"stripe_checkout_session_id"`
	StripePaymentIntentID   *string   `json:"stripe_payment_intent_id"`
	Status                  string    `json:"status"`
	FailureReason           *string   `json:"failure_reason"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

type EntryFee struct {
	ID          int64     `json:"id"`
	MemberID    int64     `json:"member_id"`
	ShowName    string    `json:"show_name"`
	ClassName   string    `json:"class_name"`
	AmountCents int64     `json:"amount_cents"`
	Paid        bool      `json:"paid"`
	PaymentID   *int64    `json:"payment_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	MemberID  int64     `json:"member_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthCode is a single-use login code exchanged at /auth/callback.
type AuthCode struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	MemberID  int64     `json:"member_id"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookEvent records a processed gateway event id for replay detection.
type WebhookEvent struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}
