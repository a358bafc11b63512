// Package request is the top-level read/write surface of the client.
//
// Reads flow through a deduplication ledger and the TTL cache before
// reaching the network; identical concurrent reads collapse into one
// upstream call and every waiter shares its result. When the network
// fails, an expired cache entry is served as a last resort. Writes go
// straight to the dispatcher while online and into the durable offline
// queue otherwise, and successful mutations trigger the matching cache
// invalidation hook.
package request
