package payments

import (
	"context"
	"fmt"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// IssueRefund refunds a payment, fully when amountCents is zero and
// partially otherwise. The originating charge is resolved via the payment
// intent reference; a reference without a settled charge is a caller error.
// The audit ledger records the refund as a negative amount.
func (s *Service) IssueRefund(ctx context.Context, userID uint, paymentIntentID string, amountCents int64, reason string) (*models.Refund, error) {
	if paymentIntentID == "" {
		return nil, notFoundError("payment reference is required")
	}

	pi, err := s.provider.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if pi.LatestChargeID == "" {
		return nil, notFoundError("payment %s has no associated charge", paymentIntentID)
	}

	remote, err := s.provider.CreateRefund(ctx, pi.ID, amountCents, reason)
	if err != nil {
		return nil, err
	}

	ref := &models.Refund{
		UserID:                  userID,
		Provider:                models.PaymentProviderStripe,
		ProviderRefundID:        remote.ID,
		ProviderPaymentIntentID: pi.ID,
		AmountCents:             remote.AmountCents,
		Currency:                remote.Currency,
		Status:                  remote.Status,
		Reason:                  reason,
	}
	if err := s.repo.UpsertRefund(ref); err != nil {
		return nil, err
	}

	s.appendAudit(userID, "", "refund.issued", -remote.AmountCents, remote.Currency,
		fmt.Sprintf("refund %s for payment %s", remote.ID, pi.ID), "")

	return ref, nil
}
