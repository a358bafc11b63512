// Package cache provides the durable TTL cache behind the cached read path.
//
// It provides a Store interface with SQLite and memory implementations,
// deterministic key building scoped to the active organization, TTL
// policies, and domain-grouped invalidation hooks. Expired entries are
// retained (not purged) so the read path can fall back to stale data when
// the network is unavailable.
package cache
