package constants

// Static route constants
const (
	APIRoute   = "/api"
	APIv1Route = "/v1"

	BillingRoute = "/billing"
	AdminRoute   = "/admin"

	// Webhook path kept stable; it is registered with the provider and
	// must not move without a corresponding dashboard change.
	StripeWebhookRoute = "/billing/webhook/stripe"
)
