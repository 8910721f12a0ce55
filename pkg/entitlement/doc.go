// Package entitlement holds the per-user subscription record and the state
// machine that is the only component allowed to change it.
//
// Two producers feed the machine: synchronous client actions (create,
// cancel) and asynchronous provider webhooks. Both describe what they want as
// a Transition carrying an event Marker. Machine.Apply loads the record,
// checks the move against a fixed transition table, rejects it as stale when
// the marker is not newer than the last applied one, and commits with a
// compare-and-swap on that marker. Contention on one user is resolved by
// retrying; different users never contend.
//
// Tier is always derived from status at commit time:
//
//	ACTIVE, TRIALING            -> PREMIUM
//	CANCELLED before expiresAt  -> PREMIUM
//	CANCELLED after expiresAt   -> FREE
//	EXPIRED                     -> FREE
//
// Stale and invalid transitions are outcomes, not errors. Apply returns an
// error only when the store fails.
package entitlement
