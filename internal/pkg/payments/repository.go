package payments

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// Repository provides DB operations used by the payments service.
type Repository interface {
	GetUserByID(id uint) (*models.User, error)
	SetUserSuspension(userID uint, suspended bool, until *time.Time) error
	SetUserStatus(userID uint, status string) error

	GetPaymentCustomerByUserID(userID uint) (*models.PaymentCustomer, error)
	GetPaymentCustomerByProviderID(providerCustomerID string) (*models.PaymentCustomer, error)
	CreatePaymentCustomer(pc *models.PaymentCustomer) (*models.PaymentCustomer, error)

	UpsertPaymentMethod(pm *models.PaymentMethod) error
	ListPaymentMethodsByUser(userID uint) ([]models.PaymentMethod, error)
	GetPaymentMethodForUser(userID, id uint) (*models.PaymentMethod, error)
	DeletePaymentMethod(id uint) error
	SetDefaultPaymentMethod(userID uint, providerPaymentMethodID string) error

	GetSubscriptionByUserID(userID uint) (*models.Subscription, error)
	GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error

	CreateAuditEntryIfNotExists(entry *models.AuditLogEntry) (bool, error)
	ListAuditEntriesByUser(userID uint, offset, limit int) ([]models.AuditLogEntry, error)

	CreateAccountAction(action *models.AccountAction) error
	ListAccountActionsByUser(userID uint, offset, limit int) ([]models.AccountAction, error)
	LastAccountAction(userID uint, actionType string) (*models.AccountAction, error)

	UpsertRefund(r *models.Refund) error
	GetRefundByProviderID(providerRefundID string) (*models.Refund, error)

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SetUserSuspension(userID uint, suspended bool, until *time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_suspended":    suspended,
		"suspended_until": until,
	}).Error
}

func (r *gormRepository) SetUserStatus(userID uint, status string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("status", status).Error
}

func (r *gormRepository) GetPaymentCustomerByUserID(userID uint) (*models.PaymentCustomer, error) {
	var pc models.PaymentCustomer
	if err := r.db.Where("user_id = ?", userID).First(&pc).Error; err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *gormRepository) GetPaymentCustomerByProviderID(providerCustomerID string) (*models.PaymentCustomer, error) {
	var pc models.PaymentCustomer
	if err := r.db.Where("provider_customer_id = ?", providerCustomerID).First(&pc).Error; err != nil {
		return nil, err
	}
	return &pc, nil
}

// CreatePaymentCustomer inserts the mapping, treating a unique-constraint
// conflict as "someone else just created it" and re-reading the winner.
func (r *gormRepository) CreatePaymentCustomer(pc *models.PaymentCustomer) (*models.PaymentCustomer, error) {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(pc).Error; err != nil {
		return nil, err
	}

	var stored models.PaymentCustomer
	if err := r.db.Where("user_id = ?", pc.UserID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormRepository) UpsertPaymentMethod(pm *models.PaymentMethod) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_method_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"brand",
			"last4",
			"exp_month",
			"exp_year",
			"is_default",
			"updated_at",
		}),
	}).Create(pm).Error; err != nil {
		return err
	}

	return r.db.Where("provider_payment_method_id = ?", pm.ProviderPaymentMethodID).
		First(pm).Error
}

func (r *gormRepository) ListPaymentMethodsByUser(userID uint) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&methods).Error
	return methods, err
}

func (r *gormRepository) GetPaymentMethodForUser(userID, id uint) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&pm).Error; err != nil {
		return nil, err
	}
	return &pm, nil
}

func (r *gormRepository) DeletePaymentMethod(id uint) error {
	return r.db.Delete(&models.PaymentMethod{}, id).Error
}

// SetDefaultPaymentMethod clears all default flags for the user and sets the
// new one inside a single transaction, keeping the at-most-one-default
// invariant observable at every point in time.
func (r *gormRepository) SetDefaultPaymentMethod(userID uint, providerPaymentMethodID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentMethod{}).
			Where("user_id = ?", userID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		if providerPaymentMethodID == "" {
			return nil
		}
		return tx.Model(&models.PaymentMethod{}).
			Where("user_id = ? AND provider_payment_method_id = ?", userID, providerPaymentMethodID).
			Update("is_default", true).Error
	})
}

func (r *gormRepository) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_subscription_id",
			"plan_key",
			"status",
			"trial_start",
			"trial_end",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ?", sub.UserID).First(sub).Error
}

// CreateAuditEntryIfNotExists is the global deduplication boundary: the
// insert is dropped when the provider event id is already recorded.
func (r *gormRepository) CreateAuditEntryIfNotExists(entry *models.AuditLogEntry) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(entry)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListAuditEntriesByUser(userID uint, offset, limit int) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *gormRepository) CreateAccountAction(action *models.AccountAction) error {
	return r.db.Create(action).Error
}

func (r *gormRepository) ListAccountActionsByUser(userID uint, offset, limit int) ([]models.AccountAction, error) {
	var actions []models.AccountAction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&actions).Error
	return actions, err
}

func (r *gormRepository) LastAccountAction(userID uint, actionType string) (*models.AccountAction, error) {
	var action models.AccountAction
	err := r.db.Where("user_id = ? AND action_type = ?", userID, actionType).
		Order("created_at DESC, id DESC").
		First(&action).Error
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (r *gormRepository) UpsertRefund(ref *models.Refund) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_refund_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"updated_at",
		}),
	}).Create(ref).Error; err != nil {
		return err
	}
	return r.db.Where("provider_refund_id = ?", ref.ProviderRefundID).First(ref).Error
}

func (r *gormRepository) GetRefundByProviderID(providerRefundID string) (*models.Refund, error) {
	var ref models.Refund
	if err := r.db.Where("provider_refund_id = ?", providerRefundID).First(&ref).Error; err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
