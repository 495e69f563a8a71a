package models

import "time"

const (
	ActionSuspended            = "suspended"
	ActionUnsuspended          = "unsuspended"
	ActionBanned               = "banned"
	ActionTrialRevoked         = "trial_revoked"
	ActionSubscriptionCanceled = "subscription_canceled"
	ActionPaymentFailed        = "payment_failed"
	ActionPaymentRecovered     = "payment_recovered"
	ActionManualOverride       = "manual_override"
)

// AccountAction is an append-only record of an administrative action taken on
// a user. The current suspension state is a projection over the most recent
// suspend/unsuspend pair and is additionally mirrored onto users.is_suspended
// for cheap reads.
type AccountAction struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_account_actions_user_type,priority:1" json:"user_id"`
	ActionType   string     `gorm:"type:varchar(40);not null;index:idx_account_actions_user_type,priority:2" json:"action_type"`
	Reason       string     `gorm:"type:varchar(255);default:''" json:"reason"`
	PerformedBy  string     `gorm:"type:varchar(100);default:'system'" json:"performed_by"`
	ExpiresAt    *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	MetadataJSON string     `gorm:"type:text" json:"metadata_json"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// IsCascading reports whether recording the action must also cancel any
// non-terminal subscription immediately, not at period end.
func IsCascadingActionType(actionType string) bool {
	switch actionType {
	case ActionTrialRevoked, ActionSubscriptionCanceled, ActionBanned:
		return true
	default:
		return false
	}
}

// IsKnownActionType validates an action type against the closed set above.
func IsKnownActionType(actionType string) bool {
	switch actionType {
	case ActionSuspended, ActionUnsuspended, ActionBanned, ActionTrialRevoked,
		ActionSubscriptionCanceled, ActionPaymentFailed, ActionPaymentRecovered,
		ActionManualOverride:
		return true
	default:
		return false
	}
}
