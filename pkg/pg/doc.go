// Package pg opens a pgx connection pool and applies goose migrations.
//
// Connect retries with a linear backoff while the database comes up and
// verifies the pool with a ping. Migrate runs the SQL migrations shipped in an
// fs.FS (typically an embed.FS next to the store that owns the schema) over
// the same pool through pgx's database/sql bridge.
//
// The Is* helpers classify pgx errors so stores can map them to their own
// sentinels without importing pgconn.
package pg
