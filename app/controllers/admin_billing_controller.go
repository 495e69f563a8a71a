package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/metrics/counter"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/usercontext"
)

func adminTargetUserID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}
	return uint(id), nil
}

type accountActionRequest struct {
	ActionType   string     `json:"action_type" validate:"required,min=3,max=40"`
	Reason       string     `json:"reason" validate:"max=255"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MetadataJSON string     `json:"metadata_json"`
}

// HandleRecordAccountAction records an administrative action against a user.
// Cascading actions (ban, trial revocation, forced cancel) also cancel any
// live subscription immediately.
func HandleRecordAccountAction(c *fiber.Ctx) error {
	targetID, err := adminTargetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid user id"})
	}

	var req accountActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "action_type is required"})
	}

	userCtx := usercontext.GetUserContext(c)
	performedBy := "admin:" + strconv.FormatUint(uint64(userCtx.UserID), 10)

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	action, err := billingService().RecordAccountAction(ctx, models.AccountAction{
		UserID:       targetID,
		ActionType:   req.ActionType,
		Reason:       req.Reason,
		PerformedBy:  performedBy,
		ExpiresAt:    req.ExpiresAt,
		MetadataJSON: req.MetadataJSON,
	})
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"action": action})
}

// HandleListAccountActions returns a user's administrative action history,
// newest first.
func HandleListAccountActions(c *fiber.Ctx) error {
	targetID, err := adminTargetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid user id"})
	}
	offset, limit := parsePaging(c)

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	actions, err := billingService().ListAccountActions(ctx, targetID, offset, limit)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"actions": actions})
}

type refundRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required,min=3,max=255"`
	AmountCents     int64  `json:"amount_cents" validate:"gte=0"`
	Reason          string `json:"reason" validate:"max=255"`
}

// HandleIssueRefund refunds a charge for a user. A zero amount refunds the
// full charge.
func HandleIssueRefund(c *fiber.Ctx) error {
	targetID, err := adminTargetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid user id"})
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payment_intent_id is required, amount_cents must be >= 0"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	refund, err := billingService().IssueRefund(ctx, targetID, req.PaymentIntentID, req.AmountCents, req.Reason)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"refund": refund})
}

// HandleWebhookHealth reports the signature-failure count for the current
// window so operators can spot a broken secret or endpoint probing.
func HandleWebhookHealth(c *fiber.Ctx) error {
	failures, err := counter.WebhookSignatureFailures()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"signature_failures": failures})
}

// HandleGetAuditLog returns a user's billing audit ledger, newest first.
func HandleGetAuditLog(c *fiber.Ctx) error {
	targetID, err := adminTargetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid user id"})
	}
	offset, limit := parsePaging(c)

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	entries, err := billingService().GetAuditLog(ctx, targetID, offset, limit)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"audit_log": entries})
}
