// Package mongo connects to MongoDB with the official v2 driver.
//
// The service keeps its append-only signal log in MongoDB. Connect retries
// the initial ping, bounded by the context, and returns the configured
// database handle alongside the client so callers can disconnect on exit.
package mongo
