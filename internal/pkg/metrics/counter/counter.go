package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/cache"
)

const (
	webhookSignatureFailuresKey = "webhook:counters:signature_failures"

	// Rolling window for signature-failure escalation. Persistent failures
	// inside the window mean either a misconfigured secret or someone
	// probing the endpoint; both need an operator.
	signatureFailureWindow = time.Hour
)

// AddWebhookSignatureFailure increments the rolling signature-failure
// counter for the current window and returns the new count.
func AddWebhookSignatureFailure() (int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	key := windowKey()
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// First increment sets the window TTL.
	if count == 1 {
		rdb.Expire(ctx, key, signatureFailureWindow)
	}
	return count, nil
}

// WebhookSignatureFailures returns the failure count for the current window.
func WebhookSignatureFailures() (int64, error) {
	ctx := context.Background()
	count, err := cache.GetClient().Get(ctx, windowKey()).Int64()
	if err != nil {
		// Missing key simply means no failures this window.
		return 0, nil
	}
	return count, nil
}

func windowKey() string {
	window := time.Now().UTC().Truncate(signatureFailureWindow).Unix()
	return fmt.Sprintf("%s:%d", webhookSignatureFailuresKey, window)
}
