// Package api is the HTTP surface of entitlementd.
//
// Client routes identify the caller by the X-User-ID header; authenticating
// that header is the job of the gateway in front of the service. The provider
// webhook route reads the raw body and the Stripe-Signature header and only
// rejects requests whose signature does not verify.
package api
