package models

import "time"

// PaymentMethod mirrors a tokenized payment instrument stored at the
// provider. Only display metadata lives here; raw card data never does.
// ProviderPaymentMethodID is the natural conflict key for sync upserts.
type PaymentMethod struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	UserID                  uint      `gorm:"not null;index" json:"user_id"`
	Provider                string    `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ProviderPaymentMethodID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_methods_provider_ref" json:"provider_payment_method_id"`
	Brand                   string    `gorm:"type:varchar(40);default:''" json:"brand"`
	Last4                   string    `gorm:"type:varchar(4);default:''" json:"last4"`
	ExpMonth                int64     `gorm:"default:0" json:"exp_month"`
	ExpYear                 int64     `gorm:"default:0" json:"exp_year"`
	IsDefault               bool      `gorm:"default:false;index" json:"is_default"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
