package models

import "time"

// Refund links a provider-side refund back to the originating payment
// intent. Created synchronously when a refund is requested; the status is
// only touched again if the provider reports an asynchronous change.
type Refund struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	UserID                  uint      `gorm:"not null;index" json:"user_id"`
	Provider                string    `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ProviderRefundID        string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_refunds_provider_refund" json:"provider_refund_id"`
	ProviderPaymentIntentID string    `gorm:"type:varchar(191);not null;index" json:"provider_payment_intent_id"`
	AmountCents             int64     `gorm:"not null" json:"amount_cents"`
	Currency                string    `gorm:"type:varchar(8);default:''" json:"currency"`
	Status                  string    `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`
	Reason                  string    `gorm:"type:varchar(255);default:''" json:"reason"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
