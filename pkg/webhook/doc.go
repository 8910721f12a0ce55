// Package webhook delivers operator alerts to an HTTP endpoint.
//
// Payloads are JSON, signed with HMAC-SHA256 over "timestamp.payload" when a
// secret is configured, and retried with exponential backoff on network
// errors, 5xx responses and the retryable 4xx codes (408, 425, 429). Other
// 4xx responses fail immediately.
//
//	sender := webhook.NewSender()
//	err := sender.Send(ctx, cfg.URL, alert,
//	    webhook.WithSignature(cfg.Secret),
//	    webhook.WithMaxRetries(cfg.MaxRetries),
//	)
//
// Receivers verify with VerifyRequest, which checks the signature and rejects
// timestamps outside maxAge.
package webhook
