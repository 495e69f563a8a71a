package payments

import (
	"context"
	"time"
)

// ProviderCustomer is the provider-side customer record.
type ProviderCustomer struct {
	ID    string
	Email string
}

// ProviderSetupIntent is the handle the client uses to collect an instrument
// out-of-band. Only the client secret leaves the backend.
type ProviderSetupIntent struct {
	ID           string
	ClientSecret string
}

// ProviderPaymentMethod is the provider's view of a saved instrument.
type ProviderPaymentMethod struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

// ProviderSubscription is the provider's view of a subscription after a
// lifecycle call. Status strings are taken verbatim.
type ProviderSubscription struct {
	ID                 string
	Status             string
	CancelAtPeriodEnd  bool
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
}

// ProviderPaymentIntent is the provider's record of a payment, resolved when
// issuing refunds.
type ProviderPaymentIntent struct {
	ID             string
	AmountCents    int64
	Currency       string
	LatestChargeID string
}

// ProviderRefund is the provider's refund record.
type ProviderRefund struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string
}

// Provider abstracts the remote payment service. The Stripe implementation
// lives in stripe.go; tests swap in a fake. Every call is a blocking remote
// round trip and honors the passed context deadline. A timeout is an
// ambiguous outcome: the operation may or may not have taken effect remotely.
type Provider interface {
	CreateCustomer(ctx context.Context, email, name string, userID uint) (*ProviderCustomer, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*ProviderSetupIntent, error)
	// ListPaymentMethods returns the saved instruments plus the provider's
	// notion of the default instrument id (empty when none is set).
	ListPaymentMethods(ctx context.Context, customerID string) ([]ProviderPaymentMethod, string, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, customerID, priceRef, paymentMethodID string, trialDays int64) (*ProviderSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error)
	CancelSubscriptionNow(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*ProviderPaymentIntent, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*ProviderRefund, error)
}
