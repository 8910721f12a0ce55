package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrymomot/entitlements/core"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

// SignatureHeader is the header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

type webhookRequest struct {
	Payload   []byte
	Signature string
}

// bindWebhook reads the raw body untouched; signature verification needs
// the exact bytes the provider sent.
func bindWebhook(maxBytes int64) core.Bind {
	return func(r *http.Request, v any) error {
		req, ok := v.(*webhookRequest)
		if !ok {
			return fmt.Errorf("api: bindWebhook cannot bind %T", v)
		}

		body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return core.ErrRequestEntityTooLarge
			}
			return core.ErrBadRequest.WithMessage("failed to read request body")
		}

		req.Payload = body
		req.Signature = r.Header.Get(SignatureHeader)
		return nil
	}
}

type webhookResponse struct {
	Received bool                        `json:"received"`
	EventID  string                      `json:"event_id"`
	Outcome  subscription.WebhookOutcome `json:"outcome"`
}

// stripeWebhook acknowledges every verified event, including ones that were
// stale, duplicated or ignored, so the provider stops redelivering them.
func (rt *router) stripeWebhook(ctx core.Context, req webhookRequest) core.Response {
	res, err := rt.svc.HandleWebhook(ctx, req.Payload, req.Signature)
	if err != nil {
		return rt.fail(ctx, err)
	}
	return core.JSON(webhookResponse{
		Received: true,
		EventID:  res.EventID,
		Outcome:  res.Outcome,
	})
}
