package payments

import (
	"context"
	"fmt"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// RecordAccountAction appends an action row, mirrors suspension state onto
// the user record, and for cascading action types cancels any non-terminal
// subscription immediately via the provider. Authorization is the caller's
// responsibility.
func (s *Service) RecordAccountAction(ctx context.Context, in models.AccountAction) (*models.AccountAction, error) {
	if in.UserID == 0 {
		return nil, notFoundError("user is required")
	}
	if !models.IsKnownActionType(in.ActionType) {
		return nil, configurationError("unknown action type %q", in.ActionType)
	}
	if in.PerformedBy == "" {
		in.PerformedBy = "system"
	}

	action := in
	if err := s.repo.CreateAccountAction(&action); err != nil {
		return nil, err
	}

	switch action.ActionType {
	case models.ActionSuspended:
		if err := s.repo.SetUserSuspension(action.UserID, true, action.ExpiresAt); err != nil {
			return nil, err
		}
	case models.ActionUnsuspended:
		if err := s.repo.SetUserSuspension(action.UserID, false, nil); err != nil {
			return nil, err
		}
	case models.ActionBanned:
		if err := s.repo.SetUserStatus(action.UserID, models.STATUS_BANNED); err != nil {
			return nil, err
		}
	}

	if models.IsCascadingActionType(action.ActionType) {
		if err := s.cancelSubscriptionNow(ctx, action.UserID, true); err != nil {
			return nil, err
		}
	}

	s.appendAudit(action.UserID, "", "account."+action.ActionType, 0, "",
		fmt.Sprintf("account action %s by %s: %s", action.ActionType, action.PerformedBy, action.Reason), action.MetadataJSON)

	return &action, nil
}

// ListAccountActions returns the newest actions for a user.
func (s *Service) ListAccountActions(ctx context.Context, userID uint, offset, limit int) ([]models.AccountAction, error) {
	_ = ctx
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAccountActionsByUser(userID, offset, limit)
}
