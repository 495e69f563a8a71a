package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// Service is the subscription and payment reconciliation engine. All local
// writes happen only after the provider acknowledged the corresponding
// remote mutation; webhook processing inverts the flow and treats the
// provider payload as authoritative.
type Service struct {
	repo     Repository
	provider Provider
}

// NewService creates a payments service from injected dependencies.
func NewService(repo Repository, provider Provider) *Service {
	return &Service{repo: repo, provider: provider}
}

// NewServiceFromDB creates a payments service from a GORM DB handle and a
// provider implementation.
func NewServiceFromDB(db *gorm.DB, provider Provider) *Service {
	return NewService(NewRepository(db), provider)
}

// EnsureCustomer returns the remote customer reference for a user, lazily
// provisioning it on first use. Safe to call concurrently for the same user:
// a lost insert race is recovered by re-reading the winning row.
func (s *Service) EnsureCustomer(ctx context.Context, userID uint) (string, error) {
	if userID == 0 {
		return "", notFoundError("user is required")
	}

	pc, err := s.repo.GetPaymentCustomerByUserID(userID)
	if err == nil {
		return pc.ProviderCustomerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", notFoundError("user %d not found", userID)
		}
		return "", err
	}

	remote, err := s.provider.CreateCustomer(ctx, user.Email, user.Name, user.ID)
	if err != nil {
		return "", err
	}

	stored, err := s.repo.CreatePaymentCustomer(&models.PaymentCustomer{
		UserID:             user.ID,
		Provider:           models.PaymentProviderStripe,
		ProviderCustomerID: remote.ID,
		Email:              remote.Email,
	})
	if err != nil {
		return "", err
	}
	if stored.ProviderCustomerID != remote.ID {
		// A concurrent caller won the insert; the remote customer created
		// here becomes an orphan on the provider, which is harmless.
		log.Printf("payments: duplicate customer provisioning for user %d, keeping %s", user.ID, stored.ProviderCustomerID)
	}
	return stored.ProviderCustomerID, nil
}

// GetAuditLog returns the newest audit entries for a user.
func (s *Service) GetAuditLog(ctx context.Context, userID uint, offset, limit int) ([]models.AuditLogEntry, error) {
	_ = ctx
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAuditEntriesByUser(userID, offset, limit)
}

func payloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// appendAudit writes a ledger entry, deriving a stable key from the payload
// for internally-originated events that carry no provider event id. Failures
// are logged, never propagated: the ledger records effects that already
// happened and must not veto them.
func (s *Service) appendAudit(userID uint, providerEventID, eventType string, amountCents int64, currency, description, payloadJSON string) {
	eventID := strings.TrimSpace(providerEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s", eventType, userID, time.Now().UnixNano(), payloadJSON)))
		eventID = "local:" + hex.EncodeToString(sum[:])
	}

	created, err := s.repo.CreateAuditEntryIfNotExists(&models.AuditLogEntry{
		UserID:          userID,
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		AmountCents:     amountCents,
		Currency:        currency,
		Description:     description,
		PayloadJSON:     payloadJSON,
	})
	if err != nil {
		log.Printf("payments: audit append failed for user %d event %s: %v", userID, eventType, err)
		return
	}
	if !created {
		log.Printf("payments: audit entry %s already recorded, skipping", eventID)
	}
}
