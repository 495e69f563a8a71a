package models

import "time"

// AuditLogEntry is an immutable, append-only record of a financial event.
// ProviderEventID is the idempotency boundary: inserting an entry whose event
// id already exists is a no-op. Amounts are signed minor currency units;
// refunds are recorded negative. Rows are never updated or deleted.
type AuditLogEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Provider        string    `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_audit_log_provider_event" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	AmountCents     int64     `gorm:"default:0" json:"amount_cents"`
	Currency        string    `gorm:"type:varchar(8);default:''" json:"currency"`
	Description     string    `gorm:"type:varchar(255);default:''" json:"description"`
	PayloadJSON     string    `gorm:"type:longtext" json:"payload_json"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
