// Package offline durably queues writes attempted without connectivity
// and replays them through the dispatcher when the connection returns.
//
// The caller of a queued write receives an immediate synthetic
// acknowledgement carrying a localized "saved locally" message. Each
// queued mutation moves through pending, in-flight, and then either
// succeeds (and is removed individually) or returns to pending for the
// next sync cycle. Every entry carries an idempotency key so a server
// honoring the X-Idempotency-Key header cannot apply a replayed write
// twice.
package offline
