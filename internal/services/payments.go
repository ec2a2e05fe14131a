package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dinewithlocals/backend/internal/metrics"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// ErrPaymentsDisabled is returned by the noop gateway.
var ErrPaymentsDisabled = errors.New("payments are not enabled")

// Authorization is a hold placed on the guest's payment method.
type Authorization struct {
	IntentID     string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// PaymentMetadata is attached to the intent for reconciliation.
type PaymentMetadata struct {
	ListingID uint
	GuestID   uint
}

// PaymentGateway authorizes a hold at booking time and captures it when the
// host approves.
type PaymentGateway interface {
	Enabled() bool
	Authorize(ctx context.Context, amount int64, currency string, meta PaymentMetadata) (*Authorization, error)
	Capture(ctx context.Context, intentID string) error
	Cancel(ctx context.Context, intentID string) error
}

// StripeGateway uses manual-capture PaymentIntents.
type StripeGateway struct {
	metrics *metrics.Metrics
}

func NewStripeGateway(secretKey string, m *metrics.Metrics) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{metrics: m}
}

func (g *StripeGateway) Enabled() bool { return true }

func (g *StripeGateway) Authorize(ctx context.Context, amount int64, currency string, meta PaymentMetadata) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("listing_id", fmt.Sprint(meta.ListingID))
	params.AddMetadata("guest_id", fmt.Sprint(meta.GuestID))

	pi, err := paymentintent.New(params)
	g.observe("authorize", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &Authorization{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := paymentintent.Capture(intentID, params)
	g.observe("capture", err)
	if err != nil {
		return fmt.Errorf("failed to capture payment: %w", err)
	}
	return nil
}

func (g *StripeGateway) Cancel(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(intentID, params)
	g.observe("cancel", err)
	if err != nil {
		return fmt.Errorf("failed to cancel payment: %w", err)
	}
	return nil
}

func (g *StripeGateway) observe(op string, err error) {
	if g.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	g.metrics.PaymentsTotal.WithLabelValues(op, outcome).Inc()
}

// NoopGateway is used when no payment provider is configured. Matches are
// then never payment gated.
type NoopGateway struct{}

func (NoopGateway) Enabled() bool { return false }

func (NoopGateway) Authorize(context.Context, int64, string, PaymentMetadata) (*Authorization, error) {
	return nil, ErrPaymentsDisabled
}

func (NoopGateway) Capture(context.Context, string) error { return ErrPaymentsDisabled }

func (NoopGateway) Cancel(context.Context, string) error { return nil }

// NewPaymentGateway picks Stripe when a secret key is present.
func NewPaymentGateway(secretKey string, m *metrics.Metrics) PaymentGateway {
	if secretKey == "" {
		return NoopGateway{}
	}
	return NewStripeGateway(secretKey, m)
}
