package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/Chrismelgar17/tipzy-sub000/app/controllers"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/constants"
	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max: 120,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIv1Route)

	// The webhook endpoint authenticates with the provider signature, not an
	// API key, so it sits outside the auth middleware.
	v1.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	billing := v1.Group(constants.BillingRoute, middleware.APIKeyAuthMiddleware(), middleware.RequireAuth)
	billing.Post("/setup-intent", controllers.HandleCreateSetupIntent)
	billing.Post("/payment-methods/sync", controllers.HandleSyncPaymentMethods)
	billing.Get("/payment-methods", controllers.HandleListPaymentMethods)
	billing.Delete("/payment-methods/:id", controllers.HandleRemovePaymentMethod)
	billing.Put("/payment-methods/:id/default", controllers.HandleSetDefaultPaymentMethod)
	billing.Post("/subscription/trial", controllers.HandleStartTrial)
	billing.Get("/subscription", controllers.HandleGetSubscription)
	billing.Post("/subscription/cancel", controllers.HandleCancelSubscription)
	billing.Post("/subscription/reactivate", controllers.HandleReactivateSubscription)

	admin := v1.Group(constants.AdminRoute, middleware.APIKeyAuthMiddleware(), middleware.RequireAdmin)
	admin.Post("/accounts/:id/actions", controllers.HandleRecordAccountAction)
	admin.Get("/accounts/:id/actions", controllers.HandleListAccountActions)
	admin.Post("/accounts/:id/refunds", controllers.HandleIssueRefund)
	admin.Get("/accounts/:id/audit-log", controllers.HandleGetAuditLog)
	admin.Get("/webhooks/health", controllers.HandleWebhookHealth)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
