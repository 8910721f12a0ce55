// Package subscription is the billing boundary: the action gateway that
// creates and cancels subscriptions on behalf of a user, and the webhook
// reconciler that folds provider events back into entitlements.
//
// Both paths end in entitlement.Machine.Apply. The gateway applies only after
// the provider call has fully succeeded, so a failed create or cancel leaves
// no partial transition behind. The reconciler verifies the provider
// signature, claims the event id in an EventLog so redeliveries are no-ops,
// and dispatches on a closed set of event kinds:
//
//	subscription created/updated -> status mapped to a trigger
//	subscription deleted         -> EXPIRED
//	invoice payment succeeded    -> subscription re-fetched, period extended, ACTIVE
//	invoice payment failed       -> monitoring signal only
//	anything else                -> acknowledged and ignored
//
// Once the signature is valid HandleWebhook never returns an error: stale
// transitions, unknown customers and infrastructure failures are logged,
// signalled and acknowledged.
//
// Stripe is the shipped BillingProvider. The service depends only on the
// interface, so tests use a mock.
package subscription
