// Package pgstore implements the entitlement, usage and processed-event
// stores on PostgreSQL through pgx.
//
// Every write that must be atomic is a single statement: the entitlement
// compare-and-swap is an UPDATE guarded by the stored marker, and a usage
// consume is an upsert whose update arm only fires below the ceiling. No
// store holds a transaction open across calls. The schema lives in the
// migrations package.
package pgstore
