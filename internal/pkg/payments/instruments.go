package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// CreateSetupIntent obtains a provider-side handle for collecting a new
// instrument out-of-band, provisioning the payment identity if needed.
func (s *Service) CreateSetupIntent(ctx context.Context, userID uint) (string, error) {
	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	si, err := s.provider.CreateSetupIntent(ctx, customerID)
	if err != nil {
		return "", err
	}
	return si.ClientSecret, nil
}

// SyncPaymentMethods replaces local instrument state with the provider's
// current list. Replace-by-upsert: rows are never deleted here, so a
// provider-side removal is only detected by an explicit RemovePaymentMethod.
// When the provider has instruments but no default, the first is nominated
// as default on both sides.
func (s *Service) SyncPaymentMethods(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	remote, defaultRef, err := s.provider.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if defaultRef == "" && len(remote) > 0 {
		defaultRef = remote[0].ID
		if err := s.provider.SetDefaultPaymentMethod(ctx, customerID, defaultRef); err != nil {
			return nil, err
		}
	}

	// Rows are upserted without the default flag; only the trailing
	// clear-then-set assigns it, so a stale local default never coexists
	// with the incoming one mid-sync.
	for _, m := range remote {
		if err := s.repo.UpsertPaymentMethod(&models.PaymentMethod{
			UserID:                  userID,
			Provider:                models.PaymentProviderStripe,
			ProviderPaymentMethodID: m.ID,
			Brand:                   m.Brand,
			Last4:                   m.Last4,
			ExpMonth:                m.ExpMonth,
			ExpYear:                 m.ExpYear,
		}); err != nil {
			return nil, err
		}
	}

	// Clear-then-set keeps at most one default even for rows the provider
	// list no longer contains.
	if err := s.repo.SetDefaultPaymentMethod(userID, defaultRef); err != nil {
		return nil, err
	}

	return s.repo.ListPaymentMethodsByUser(userID)
}

// ListPaymentMethods returns the locally mirrored instruments.
func (s *Service) ListPaymentMethods(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	_ = ctx
	return s.repo.ListPaymentMethodsByUser(userID)
}

// RemovePaymentMethod detaches the instrument at the provider and deletes
// the local row. If the removed instrument was the default, the most
// recently created remaining instrument is promoted on both sides.
func (s *Service) RemovePaymentMethod(ctx context.Context, userID, paymentMethodID uint) error {
	pm, err := s.repo.GetPaymentMethodForUser(userID, paymentMethodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("payment method %d not found", paymentMethodID)
		}
		return err
	}

	if err := s.provider.DetachPaymentMethod(ctx, pm.ProviderPaymentMethodID); err != nil {
		return err
	}
	if err := s.repo.DeletePaymentMethod(pm.ID); err != nil {
		return err
	}

	if !pm.IsDefault {
		return nil
	}

	remaining, err := s.repo.ListPaymentMethodsByUser(userID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}

	// List is ordered newest first.
	next := remaining[0]
	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.provider.SetDefaultPaymentMethod(ctx, customerID, next.ProviderPaymentMethodID); err != nil {
		return err
	}
	return s.repo.SetDefaultPaymentMethod(userID, next.ProviderPaymentMethodID)
}

// SetDefaultPaymentMethod makes the given instrument the default, provider
// first, then mirrored locally with a clear-then-set write.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, userID, paymentMethodID uint) error {
	pm, err := s.repo.GetPaymentMethodForUser(userID, paymentMethodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("payment method %d not found", paymentMethodID)
		}
		return err
	}

	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.provider.SetDefaultPaymentMethod(ctx, customerID, pm.ProviderPaymentMethodID); err != nil {
		return err
	}
	return s.repo.SetDefaultPaymentMethod(userID, pm.ProviderPaymentMethodID)
}
