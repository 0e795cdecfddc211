// Package email sends transactional mail through Postmark: sign-in and
// confirmation links plus payment receipts. An unconfigured client is valid;
// callers check Configured and fall back to logging.
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint. Used in tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendLoginLink emails a one-time sign-in link carrying an auth code.
func (c *Client) SendLoginLink(toEmail, code string) error {
	link := fmt.Sprintf("%s/auth/callback?code=%s", c.baseURL, code)
	return c.send(postmarkEmail{
		From:    c.fromEmail,
		To:      toEmail,
		Subject: "Sign in to Hartwell Kennel Club",
		TextBody: fmt.Sprintf(
			"Click the link below to sign in:\n\n%s\n\nThis link expires in 15 minutes.", link),
		HtmlBody: fmt.Sprintf(
			`<p>Click the link below to sign in:</p><p><a href="%s">Sign in</a></p><p>This link expires in 15 minutes.</p>`, link),
	})
}

// SendConfirmLink emails an address-confirmation link for a new registration.
func (c *Client) SendConfirmLink(toEmail, tokenHash string) error {
	link := fmt.Sprintf("%s/auth/confirm?token_hash=%s&type=signup", c.baseURL, tokenHash)
	return c.send(postmarkEmail{
		From:    c.fromEmail,
		To:      toEmail,
		Subject: "Confirm your Hartwell Kennel Club registration",
		TextBody: fmt.Sprintf(
			"Click the link below to confirm your email address:\n\n%s", link),
		HtmlBody: fmt.Sprintf(
			`<p>Click the link below to confirm your email address:</p><p><a href="%s">Confirm email</a></p>`, link),
	})
}

// SendReceipt emails a payment receipt after a checkout session completes.
func (c *Client) SendReceipt(toEmail, name, description string, amountCents int64) error {
	amount := fmt.Sprintf("$%d.%02d", amountCents/100, amountCents%100)
	return c.send(postmarkEmail{
		From:    c.fromEmail,
		To:      toEmail,
		Subject: "Payment received - Hartwell Kennel Club",
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nWe received your payment of %s for: %s.\n\nThank you!", name, amount, description),
		HtmlBody: fmt.Sprintf(
			`<p>Hi %s,</p><p>We received your payment of <strong>%s</strong> for: %s.</p><p>Thank you!</p>`,
			name, amount, description),
	})
}

func (c *Client) send(payload postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
