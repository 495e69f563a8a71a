package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/payments"
)

// statusForPaymentsError maps the engine error taxonomy to HTTP status
// codes. The machine-readable code travels in the body so clients can branch
// without string matching.
func statusForPaymentsError(err error) int {
	switch payments.CodeOf(err) {
	case payments.CodePaymentMethodRequired:
		return fiber.StatusPaymentRequired
	case payments.CodeAlreadySubscribed:
		return fiber.StatusConflict
	case payments.CodeNotFound:
		return fiber.StatusNotFound
	case payments.CodeForbidden:
		return fiber.StatusForbidden
	case payments.CodeProviderUnavailable:
		return fiber.StatusBadGateway
	case payments.CodeSignatureInvalid:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

func paymentsErrorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusForPaymentsError(err)).JSON(fiber.Map{
		"error":   payments.CodeOf(err),
		"message": err.Error(),
	})
}

// parsePaging reads offset/limit query parameters with sane bounds.
func parsePaging(c *fiber.Ctx) (int, int) {
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return offset, limit
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
