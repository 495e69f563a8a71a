package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// StartTrial creates a trialing subscription for the user's plan. Not safely
// retryable by blind re-invocation: the duplicate-subscription check is the
// re-entrancy guard, so callers seeing an ambiguous network failure must
// re-check subscription state before retrying.
func (s *Service) StartTrial(ctx context.Context, userID uint, planKey string) (*models.Subscription, error) {
	methods, err := s.repo.ListPaymentMethodsByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, ErrPaymentMethodRequired
	}

	existing, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && !existing.IsTerminal() {
		return nil, ErrAlreadySubscribed
	}

	plan, priceRef, err := ResolvePlan(planKey)
	if err != nil {
		return nil, err
	}

	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	remote, err := s.provider.CreateSubscription(ctx, customerID, priceRef, defaultMethodRef(methods), plan.TrialDays)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		UserID:                 userID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: remote.ID,
		PlanKey:                plan.Key,
		Status:                 remote.Status,
		TrialStart:             remote.TrialStart,
		TrialEnd:               remote.TrialEnd,
		CurrentPeriodStart:     remote.CurrentPeriodStart,
		CurrentPeriodEnd:       remote.CurrentPeriodEnd,
		CancelAtPeriodEnd:      remote.CancelAtPeriodEnd,
		CanceledAt:             remote.CanceledAt,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, err
	}

	s.appendAudit(userID, "", "subscription.trial_started", 0, "",
		fmt.Sprintf("trial started on plan %s (subscription %s)", plan.Key, remote.ID), "")

	return sub, nil
}

// GetSubscription returns the user's subscription row, terminal or not.
func (s *Service) GetSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("no subscription for user %d", userID)
		}
		return nil, err
	}
	return sub, nil
}

// Cancel flags the subscription to end at the period boundary. Access
// persists until then; the status itself does not change here.
func (s *Service) Cancel(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, true, "subscription.cancel_requested")
}

// Reactivate clears a pending cancellation. Only valid while the
// subscription has not reached a terminal state.
func (s *Service) Reactivate(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, false, "subscription.reactivated")
}

func (s *Service) setCancelAtPeriodEnd(ctx context.Context, userID uint, cancel bool, auditType string) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("no subscription for user %d", userID)
		}
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, notFoundError("subscription for user %d is already ended", userID)
	}

	remote, err := s.provider.SetCancelAtPeriodEnd(ctx, sub.ProviderSubscriptionID, cancel)
	if err != nil {
		return nil, err
	}

	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, err
	}

	s.appendAudit(userID, "", auditType, 0, "",
		fmt.Sprintf("cancel_at_period_end=%t (subscription %s)", remote.CancelAtPeriodEnd, sub.ProviderSubscriptionID), "")

	return sub, nil
}

// cancelSubscriptionNow ends any non-terminal subscription immediately, used
// by cascading account actions. When the provider already removed the
// subscription (e.g. the cascade follows a deletion webhook), the missing
// remote row is treated as already-canceled.
func (s *Service) cancelSubscriptionNow(ctx context.Context, userID uint, callProvider bool) error {
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if sub.IsTerminal() {
		return nil
	}

	if callProvider {
		remote, err := s.provider.CancelSubscriptionNow(ctx, sub.ProviderSubscriptionID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if remote != nil {
			sub.Status = remote.Status
			sub.CanceledAt = remote.CanceledAt
		}
	}
	if sub.Status != models.SubscriptionStatusCanceled {
		sub.Status = models.SubscriptionStatusCanceled
	}
	if sub.CanceledAt == nil {
		now := nowUTC()
		sub.CanceledAt = &now
	}
	return s.repo.UpsertSubscription(sub)
}

func nowUTC() time.Time { return time.Now().UTC() }

func defaultMethodRef(methods []models.PaymentMethod) string {
	for _, m := range methods {
		if m.IsDefault {
			return m.ProviderPaymentMethodID
		}
	}
	// No default flagged yet; newest instrument wins.
	return methods[0].ProviderPaymentMethodID
}
