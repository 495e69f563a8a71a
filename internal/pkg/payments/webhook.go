package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	stripewebhook "github.com/stripe/stripe-go/v83/webhook"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// EventKind enumerates the provider event kinds this engine reacts to.
// Anything else parses to EventIgnored and is acknowledged as a no-op
// instead of falling through an open-ended payload.
type EventKind string

const (
	EventSubscriptionUpdated  EventKind = "subscription_updated"
	EventSubscriptionDeleted  EventKind = "subscription_deleted"
	EventInvoicePaid          EventKind = "invoice_paid"
	EventInvoiceFailed        EventKind = "invoice_failed"
	EventRefundUpdated        EventKind = "refund_updated"
	EventPaymentMethodChanged EventKind = "payment_method_changed"
	EventIgnored              EventKind = "ignored"
)

// WebhookEvent is the verified, decoded form of a provider delivery: a
// tagged variant where exactly the payload matching Kind is non-nil.
type WebhookEvent struct {
	ProviderEventID string
	RawType         string
	Kind            EventKind

	Subscription  *SubscriptionEventPayload
	Invoice       *InvoiceEventPayload
	Refund        *RefundEventPayload
	PaymentMethod *PaymentMethodEventPayload
}

// SubscriptionEventPayload carries the fields applied verbatim to the local
// subscription row.
type SubscriptionEventPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	TrialStart         int64  `json:"trial_start"`
	TrialEnd           int64  `json:"trial_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// PeriodStart prefers the subscription-level field and falls back to the
// first item, covering both pre- and post-Basil payload shapes.
func (p *SubscriptionEventPayload) PeriodStart() int64 {
	if p.CurrentPeriodStart != 0 {
		return p.CurrentPeriodStart
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodStart
	}
	return 0
}

func (p *SubscriptionEventPayload) PeriodEnd() int64 {
	if p.CurrentPeriodEnd != 0 {
		return p.CurrentPeriodEnd
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

// InvoiceEventPayload carries the invoice fields the engine reads.
type InvoiceEventPayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
}

// SubscriptionID handles both payload generations of the invoice object.
func (p *InvoiceEventPayload) SubscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

// PaymentMethodEventPayload identifies the customer whose instrument list
// changed on the provider side. Detach events may carry no customer; those
// are ignored.
type PaymentMethodEventPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// RefundEventPayload carries the refund fields mirrored locally.
type RefundEventPayload struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
}

// envelope is the minimal provider event wrapper, decoded both for the
// verified path and for best-effort attempt logging of rejected payloads.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// VerifyAndParseWebhook authenticates the raw, un-decoded payload against
// the signing secret and decodes it into the closed event type. The returned
// event is non-nil even on signature failure, carrying whatever id/type
// could be parsed so the delivery attempt can still be logged; the error is
// ErrSignatureInvalid in that case and no side effects may be applied.
func VerifyAndParseWebhook(payload []byte, signatureHeader, secret string) (*WebhookEvent, error) {
	_, verr := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if verr != nil {
			return &WebhookEvent{Kind: EventIgnored}, ErrSignatureInvalid
		}
		return nil, fmt.Errorf("decode webhook envelope: %w", err)
	}

	ev := &WebhookEvent{
		ProviderEventID: env.ID,
		RawType:         env.Type,
		Kind:            kindForType(env.Type),
	}
	if verr != nil {
		return ev, ErrSignatureInvalid
	}

	switch ev.Kind {
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var p SubscriptionEventPayload
		if err := json.Unmarshal(env.Data.Object, &p); err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
		ev.Subscription = &p
	case EventInvoicePaid, EventInvoiceFailed:
		var p InvoiceEventPayload
		if err := json.Unmarshal(env.Data.Object, &p); err != nil {
			return nil, fmt.Errorf("decode invoice payload: %w", err)
		}
		ev.Invoice = &p
	case EventRefundUpdated:
		var p RefundEventPayload
		if err := json.Unmarshal(env.Data.Object, &p); err != nil {
			return nil, fmt.Errorf("decode refund payload: %w", err)
		}
		ev.Refund = &p
	case EventPaymentMethodChanged:
		var p PaymentMethodEventPayload
		if err := json.Unmarshal(env.Data.Object, &p); err != nil {
			return nil, fmt.Errorf("decode payment method payload: %w", err)
		}
		ev.PaymentMethod = &p
	}
	return ev, nil
}

func kindForType(eventType string) EventKind {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "customer.subscription.updated", "customer.subscription.created":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	case "invoice.paid", "invoice.payment_succeeded":
		return EventInvoicePaid
	case "invoice.payment_failed":
		return EventInvoiceFailed
	case "refund.updated", "charge.refund.updated", "charge.refunded":
		return EventRefundUpdated
	case "payment_method.attached", "payment_method.detached", "payment_method.automatically_updated":
		return EventPaymentMethodChanged
	default:
		return EventIgnored
	}
}

// WebhookEventInput is the normalized input for delivery attempt logging.
type WebhookEventInput struct {
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists the delivery attempt idempotently. Deliveries
// without a usable event id are keyed by a payload hash so retries of the
// exact same body still deduplicate. Deliveries that failed signature
// verification are also hash-keyed: the event id in an unverified payload
// cannot be trusted, and it must stay free for the provider's signed retry
// after our rejection.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		eventID = "hash:" + payloadHash(in.PayloadJSON)
	}
	if !in.SignatureValid {
		eventID = "unverified:" + payloadHash(in.PayloadJSON)
	}

	event := &models.WebhookEvent{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks a delivery as handled and stores an optional
// processing error for operator follow-up.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// ApplyWebhookEvent dispatches a verified event to the subscription state
// machine, refund store and audit ledger. Every mutation is idempotent to
// re-application; the audit insert keyed by the provider event id is the
// exactly-once boundary. The returned error is for the attempt log only —
// the caller still acknowledges the delivery to the provider.
func (s *Service) ApplyWebhookEvent(ctx context.Context, ev *WebhookEvent, rawPayload []byte) error {
	switch ev.Kind {
	case EventSubscriptionUpdated:
		return s.applySubscriptionUpdate(ctx, ev, false, rawPayload)
	case EventSubscriptionDeleted:
		return s.applySubscriptionUpdate(ctx, ev, true, rawPayload)
	case EventInvoicePaid:
		return s.applyInvoicePaid(ctx, ev, rawPayload)
	case EventInvoiceFailed:
		return s.applyInvoiceFailed(ctx, ev, rawPayload)
	case EventRefundUpdated:
		return s.applyRefundUpdate(ctx, ev, rawPayload)
	case EventPaymentMethodChanged:
		return s.applyPaymentMethodChange(ctx, ev, rawPayload)
	default:
		return nil
	}
}

// applyPaymentMethodChange re-syncs the local instrument mirror after the
// provider reported an attach, detach or card refresh for a known customer.
func (s *Service) applyPaymentMethodChange(ctx context.Context, ev *WebhookEvent, rawPayload []byte) error {
	p := ev.PaymentMethod
	if p.Customer == "" {
		log.Printf("payments: payment method event %s without customer, ignoring", ev.ProviderEventID)
		return nil
	}
	pc, err := s.repo.GetPaymentCustomerByProviderID(p.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("payments: payment method event for unknown customer %s, ignoring", p.Customer)
			return nil
		}
		return err
	}

	if _, err := s.SyncPaymentMethods(ctx, pc.UserID); err != nil {
		return err
	}

	s.appendAudit(pc.UserID, ev.ProviderEventID, ev.RawType, 0, "",
		fmt.Sprintf("instrument list changed (%s)", p.ID), string(rawPayload))
	return nil
}

func (s *Service) applySubscriptionUpdate(ctx context.Context, ev *WebhookEvent, deleted bool, rawPayload []byte) error {
	p := ev.Subscription
	sub, err := s.repo.GetSubscriptionByProviderID(p.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("payments: webhook %s for unknown subscription %s, ignoring", ev.RawType, p.ID)
			return nil
		}
		return err
	}

	if deleted {
		sub.Status = models.SubscriptionStatusCanceled
		if p.CanceledAt != 0 {
			sub.CanceledAt = unixToTimePtr(p.CanceledAt)
		} else if sub.CanceledAt == nil {
			now := nowUTC()
			sub.CanceledAt = &now
		}
	} else {
		// A terminal row is never resurrected by a stale update arriving
		// after the subscription already ended.
		if sub.IsTerminal() {
			log.Printf("payments: dropping %s for terminal subscription %s (%s)", ev.RawType, p.ID, sub.Status)
			return nil
		}
		sub.Status = p.Status
		sub.CancelAtPeriodEnd = p.CancelAtPeriodEnd
		sub.TrialStart = unixToTimePtr(p.TrialStart)
		sub.TrialEnd = unixToTimePtr(p.TrialEnd)
		sub.CurrentPeriodStart = unixToTimePtr(p.PeriodStart())
		sub.CurrentPeriodEnd = unixToTimePtr(p.PeriodEnd())
		if p.CanceledAt != 0 {
			sub.CanceledAt = unixToTimePtr(p.CanceledAt)
		}
	}

	if err := s.repo.UpsertSubscription(sub); err != nil {
		return err
	}

	if deleted {
		if err := s.repo.CreateAccountAction(&models.AccountAction{
			UserID:      sub.UserID,
			ActionType:  models.ActionSubscriptionCanceled,
			Reason:      "subscription deleted by provider",
			PerformedBy: "provider",
		}); err != nil {
			return err
		}
	}

	s.appendAudit(sub.UserID, ev.ProviderEventID, ev.RawType, 0, "",
		fmt.Sprintf("subscription %s -> %s", p.ID, sub.Status), string(rawPayload))
	return nil
}

func (s *Service) applyInvoicePaid(ctx context.Context, ev *WebhookEvent, rawPayload []byte) error {
	p := ev.Invoice
	sub, userID, err := s.resolveInvoiceTarget(p)
	if err != nil {
		return err
	}
	if userID == 0 {
		log.Printf("payments: invoice %s has no linked local account, ignoring", p.ID)
		return nil
	}

	// A paid invoice confirms billing only from active or past_due. The zero
	// invoice at trial start also arrives as invoice.paid and must not move a
	// trialing row ahead of the provider's own status.
	if sub != nil && (sub.Status == models.SubscriptionStatusActive || sub.Status == models.SubscriptionStatusPastDue) {
		sub.Status = models.SubscriptionStatusActive
		if err := s.repo.UpsertSubscription(sub); err != nil {
			return err
		}
	}

	// Resolve a standing payment-failure lock, if one is open.
	lastFailed, err := s.repo.LastAccountAction(userID, models.ActionPaymentFailed)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if lastFailed != nil {
		lastRecovered, err := s.repo.LastAccountAction(userID, models.ActionPaymentRecovered)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if lastRecovered == nil || lastRecovered.CreatedAt.Before(lastFailed.CreatedAt) {
			if err := s.repo.CreateAccountAction(&models.AccountAction{
				UserID:      userID,
				ActionType:  models.ActionPaymentRecovered,
				Reason:      fmt.Sprintf("invoice %s paid", p.ID),
				PerformedBy: "provider",
			}); err != nil {
				return err
			}
		}
	}

	s.appendAudit(userID, ev.ProviderEventID, ev.RawType, p.AmountPaid, p.Currency,
		fmt.Sprintf("invoice %s paid", p.ID), string(rawPayload))
	return nil
}

func (s *Service) applyInvoiceFailed(ctx context.Context, ev *WebhookEvent, rawPayload []byte) error {
	p := ev.Invoice
	sub, userID, err := s.resolveInvoiceTarget(p)
	if err != nil {
		return err
	}
	if userID == 0 {
		log.Printf("payments: failed invoice %s has no linked local account, ignoring", p.ID)
		return nil
	}

	if sub != nil && !sub.IsTerminal() {
		sub.Status = models.SubscriptionStatusPastDue
		if err := s.repo.UpsertSubscription(sub); err != nil {
			return err
		}
	}

	if err := s.repo.CreateAccountAction(&models.AccountAction{
		UserID:      userID,
		ActionType:  models.ActionPaymentFailed,
		Reason:      fmt.Sprintf("invoice %s payment failed (%d %s due)", p.ID, p.AmountDue, p.Currency),
		PerformedBy: "provider",
	}); err != nil {
		return err
	}

	s.appendAudit(userID, ev.ProviderEventID, ev.RawType, 0, p.Currency,
		fmt.Sprintf("invoice %s payment failed", p.ID), string(rawPayload))
	return nil
}

func (s *Service) applyRefundUpdate(ctx context.Context, ev *WebhookEvent, rawPayload []byte) error {
	p := ev.Refund
	if p.ID == "" {
		return nil
	}

	existing, err := s.repo.GetRefundByProviderID(p.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	userID := uint(0)
	if existing != nil {
		existing.Status = p.Status
		if err := s.repo.UpsertRefund(existing); err != nil {
			return err
		}
		userID = existing.UserID
	} else {
		log.Printf("payments: refund %s not issued through this engine, recording shell row", p.ID)
		if err := s.repo.UpsertRefund(&models.Refund{
			Provider:                models.PaymentProviderStripe,
			ProviderRefundID:        p.ID,
			ProviderPaymentIntentID: p.PaymentIntent,
			AmountCents:             p.Amount,
			Currency:                p.Currency,
			Status:                  p.Status,
			Reason:                  p.Reason,
		}); err != nil {
			return err
		}
	}

	s.appendAudit(userID, ev.ProviderEventID, ev.RawType, -p.Amount, p.Currency,
		fmt.Sprintf("refund %s -> %s", p.ID, p.Status), string(rawPayload))
	return nil
}

// resolveInvoiceTarget finds the local subscription and owning user for an
// invoice event, falling back to the customer mapping when the invoice is
// not tied to a known subscription.
func (s *Service) resolveInvoiceTarget(p *InvoiceEventPayload) (*models.Subscription, uint, error) {
	if subID := p.SubscriptionID(); subID != "" {
		sub, err := s.repo.GetSubscriptionByProviderID(subID)
		if err == nil {
			return sub, sub.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, err
		}
	}
	if p.Customer != "" {
		pc, err := s.repo.GetPaymentCustomerByProviderID(p.Customer)
		if err == nil {
			return nil, pc.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, err
		}
	}
	return nil, 0, nil
}
