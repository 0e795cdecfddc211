// Package stripe wraps the payment gateway SDK behind the handful of calls
// the club site makes: customer creation, one-off checkout sessions, refunds,
// and webhook signature verification.
package stripe

import (
	"errors"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

type Client struct {
	cfg Config
}

// NewClient configures the gateway SDK. A missing secret key is a deployment
// defect, caught here rather than on the first API call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key not configured")
	}
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}, nil
}

// WebhookConfigured reports whether the signing secret is present.
func (c *Client) WebhookConfigured() bool {
	return c.cfg.WebhookSecret != ""
}

// CreateCustomer creates a gateway customer for a member and returns the
// customer ID. The member id rides along in gateway metadata for
// cross-reference.
func (c *Client) CreateCustomer(email, name string, memberID int64) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.AddMetadata("member_id", strconv.FormatInt(memberID, 10))
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CheckoutParams describes a single-line-item, payment-mode checkout session.
// Amounts are integer cents.
type CheckoutParams struct {
	CustomerID  string
	AmountCents int64
	Description string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// CreateCheckoutSession creates a gateway-hosted checkout session.
func (c *Client) CreateCheckoutSession(p CheckoutParams) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	sess, err := checksession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sess, nil
}

// GetCheckoutSession fetches a checkout session by id. Used by the
// reconciliation sweep; the gateway is the authoritative ledger.
func (c *Client) GetCheckoutSession(id string) (*stripe.CheckoutSession, error) {
	sess, err := checksession.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return sess, nil
}

// CreateRefund issues a full refund against a payment intent.
func (c *Client) CreateRefund(paymentIntentID string) error {
	_, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	})
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// ConstructWebhookEvent verifies the signature against the raw payload and
// returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
