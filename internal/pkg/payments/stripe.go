package payments

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/paymentmethod"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/setupintent"
	"github.com/stripe/stripe-go/v83/subscription"

	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/env"
)

// StripeProvider implements Provider against the Stripe API. Mutating calls
// carry a fresh idempotency key so a retried ambiguous request cannot apply
// twice on the provider side.
type StripeProvider struct{}

// NewStripeProviderFromEnv configures the global Stripe key from the
// environment and returns a provider instance.
func NewStripeProviderFromEnv() *StripeProvider {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &StripeProvider{}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, name string, userID uint) (*ProviderCustomer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))

	c, err := customer.New(params)
	if err != nil {
		return nil, mapStripeError("create customer", err)
	}
	return &ProviderCustomer{ID: c.ID, Email: c.Email}, nil
}

func (p *StripeProvider) CreateSetupIntent(ctx context.Context, customerID string) (*ProviderSetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		PaymentMethodTypes: []*string{
			stripe.String(string(stripe.PaymentMethodTypeCard)),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	si, err := setupintent.New(params)
	if err != nil {
		return nil, mapStripeError("create setup intent", err)
	}
	return &ProviderSetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (p *StripeProvider) ListPaymentMethods(ctx context.Context, customerID string) ([]ProviderPaymentMethod, string, error) {
	listParams := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	listParams.Context = ctx

	var methods []ProviderPaymentMethod
	iter := paymentmethod.List(listParams)
	for iter.Next() {
		pm := iter.PaymentMethod()
		m := ProviderPaymentMethod{ID: pm.ID}
		if pm.Card != nil {
			m.Brand = string(pm.Card.Brand)
			m.Last4 = pm.Card.Last4
			m.ExpMonth = pm.Card.ExpMonth
			m.ExpYear = pm.Card.ExpYear
		}
		methods = append(methods, m)
	}
	if err := iter.Err(); err != nil {
		return nil, "", mapStripeError("list payment methods", err)
	}

	getParams := &stripe.CustomerParams{}
	getParams.Context = ctx
	c, err := customer.Get(customerID, getParams)
	if err != nil {
		return nil, "", mapStripeError("get customer", err)
	}
	defaultID := ""
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		defaultID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return methods, defaultID, nil
}

func (p *StripeProvider) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	if _, err := paymentmethod.Detach(paymentMethodID, params); err != nil {
		return mapStripeError("detach payment method", err)
	}
	return nil
}

func (p *StripeProvider) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	if _, err := customer.Update(customerID, params); err != nil {
		return mapStripeError("set default payment method", err)
	}
	return nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, customerID, priceRef, paymentMethodID string, trialDays int64) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceRef)},
		},
	}
	if paymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(paymentMethodID)
	}
	if trialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(trialDays)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	s, err := subscription.New(params)
	if err != nil {
		return nil, mapStripeError("create subscription", err)
	}
	return mapStripeSubscription(s), nil
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	s, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError("update subscription", err)
	}
	return mapStripeSubscription(s), nil
}

func (p *StripeProvider) CancelSubscriptionNow(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	s, err := subscription.Cancel(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError("cancel subscription", err)
	}
	return mapStripeSubscription(s), nil
}

func (p *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*ProviderPaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return nil, mapStripeError("get payment intent", err)
	}
	out := &ProviderPaymentIntent{
		ID:          pi.ID,
		AmountCents: pi.Amount,
		Currency:    strings.ToLower(string(pi.Currency)),
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	return out, nil
}

func (p *StripeProvider) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*ProviderRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	if reason != "" {
		params.Reason = stripe.String(reason)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	r, err := refund.New(params)
	if err != nil {
		return nil, mapStripeError("create refund", err)
	}
	return &ProviderRefund{
		ID:          r.ID,
		Status:      string(r.Status),
		AmountCents: r.Amount,
		Currency:    strings.ToLower(string(r.Currency)),
	}, nil
}

func mapStripeSubscription(s *stripe.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialStart:        unixToTimePtr(s.TrialStart),
		TrialEnd:          unixToTimePtr(s.TrialEnd),
		CanceledAt:        unixToTimePtr(s.CanceledAt),
	}
	// Billing period bounds live on the subscription items.
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.CurrentPeriodStart = unixToTimePtr(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unixToTimePtr(item.CurrentPeriodEnd)
	}
	return out
}

func unixToTimePtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// mapStripeError folds Stripe failures into the engine taxonomy: missing
// resources become NotFound, everything else is treated as a retryable
// provider failure.
func mapStripeError(op string, err error) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return notFoundError("%s: provider resource missing", op)
		}
	}
	return providerError(op+" failed", err)
}
