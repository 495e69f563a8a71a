package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/database"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/env"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/metrics/counter"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/payments"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/usercontext"
)

const providerCallTimeout = 20 * time.Second

// signatureFailureEscalation is the per-window failure count above which the
// webhook endpoint starts shouting for an operator.
const signatureFailureEscalation = 10

var stripeProvider = payments.NewStripeProviderFromEnv

func billingService() *payments.Service {
	return payments.NewServiceFromDB(database.GetDB(), stripeProvider())
}

// HandleCreateSetupIntent returns a client secret the app uses to collect a
// new card out-of-band. Ensures the payment identity exists.
func HandleCreateSetupIntent(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	clientSecret, err := billingService().CreateSetupIntent(ctx, userCtx.UserID)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"client_secret": clientSecret})
}

// HandleSyncPaymentMethods mirrors the provider's instrument list locally.
func HandleSyncPaymentMethods(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	methods, err := billingService().SyncPaymentMethods(ctx, userCtx.UserID)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"payment_methods": methods})
}

// HandleListPaymentMethods returns the locally mirrored instruments.
func HandleListPaymentMethods(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	methods, err := billingService().ListPaymentMethods(ctx, userCtx.UserID)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"payment_methods": methods})
}

// HandleRemovePaymentMethod detaches an instrument, promoting the next most
// recent one when the default was removed.
func HandleRemovePaymentMethod(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payment method id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	if err := billingService().RemovePaymentMethod(ctx, userCtx.UserID, uint(id)); err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleSetDefaultPaymentMethod makes the given instrument the default.
func HandleSetDefaultPaymentMethod(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid payment method id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	if err := billingService().SetDefaultPaymentMethod(ctx, userCtx.UserID, uint(id)); err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

type startTrialRequest struct {
	PlanKey string `json:"plan_key" validate:"required,min=3,max=50"`
}

// HandleStartTrial starts a trial subscription on the requested plan.
func HandleStartTrial(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req startTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}
	if err := validator.New().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "plan_key is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	sub, err := billingService().StartTrial(ctx, userCtx.UserID, req.PlanKey)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscription": sub})
}

// HandleGetSubscription returns the caller's subscription row.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	sub, err := billingService().GetSubscription(ctx, userCtx.UserID)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": sub})
}

// HandleCancelSubscription flags the subscription to end at period end.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	sub, err := billingService().Cancel(ctx, userCtx.UserID)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": sub})
}

// HandleReactivateSubscription clears a pending cancellation.
func HandleReactivateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	sub, err := billingService().Reactivate(ctx, userCtx.UserID)
	if err != nil {
		return paymentsErrorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscription": sub})
}

// HandleStripeWebhook ingests provider events. Signature verification runs
// against the raw bytes before anything else touches the payload; every
// delivery attempt is persisted, duplicates are acknowledged without
// side effects, and processing failures are logged but still acknowledged
// so the provider does not enter a retry storm.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	ev, verifyErr := payments.VerifyAndParseWebhook(rawBody, signature, secret)
	if verifyErr != nil && !errors.Is(verifyErr, payments.ErrSignatureInvalid) {
		// Verified but undecodable payload: ack so the provider does not
		// retry a body we will never understand, and keep the raw bytes.
		log.Printf("billing webhook: undecodable payload: %v", verifyErr)
		ev = &payments.WebhookEvent{Kind: payments.EventIgnored}
	}

	svc := billingService()
	ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
	defer cancel()

	signatureValid := verifyErr == nil || !errors.Is(verifyErr, payments.ErrSignatureInvalid)
	created, stored, err := svc.RecordWebhookEvent(ctx, payments.WebhookEventInput{
		ProviderEventID: ev.ProviderEventID,
		EventType:       ev.RawType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// The 401 comes before the duplicate check: unverified attempts are
	// hash-keyed and never consume the provider's event id, so the signed
	// retry of a previously rejected delivery arrives as a fresh row.
	if !signatureValid {
		if created {
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, payments.ErrSignatureInvalid)
		}
		if count, cntErr := counter.AddWebhookSignatureFailure(); cntErr == nil && count >= signatureFailureEscalation {
			log.Printf("billing webhook: %d signature failures this window, check STRIPE_WEBHOOK_SECRET or possible probing", count)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": payments.CodeSignatureInvalid})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	applyErr := svc.ApplyWebhookEvent(ctx, ev, rawBody)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		// Acknowledge anyway; the attempt log carries the failure for
		// operator follow-up.
		log.Printf("billing webhook: processing %s (%s) failed: %v", ev.ProviderEventID, ev.RawType, applyErr)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
