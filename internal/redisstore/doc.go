// Package redisstore keeps usage counters and webhook event claims in Redis.
//
// Counters are plain integers, one key per (user, metric, bucket). A Lua
// script checks the ceiling and increments in one server-side step, so
// concurrent consumers on any number of nodes never overshoot. Daily keys
// carry a TTL of the retention window, which makes explicit pruning
// unnecessary.
package redisstore
