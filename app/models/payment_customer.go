package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
)

// PaymentCustomer maps a local user to the remote customer record held by the
// payment provider. Exactly one row per user, enforced by the unique index;
// the row is created lazily on the first payment-related operation and is
// never deleted while the user exists.
type PaymentCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex:ux_payment_customers_user" json:"user_id"`
	Provider           string    `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_customers_provider_customer" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
