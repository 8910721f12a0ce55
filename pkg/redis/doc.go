// Package redis connects to Redis with go-redis and exposes a readiness probe.
//
// Config is populated from the environment. Connect retries the initial ping
// so the service survives Redis starting after it; once connected, go-redis
// handles reconnection itself.
package redis
