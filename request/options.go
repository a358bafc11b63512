package request

import (
	"time"

	"github.com/csabourin/wampums-client/dispatch"
)

// Options tunes one call. The zero value is a plain JSON call with the
// policy's default TTL and the dispatcher's default retry count.
type Options struct {
	// Params are merged into the query string and into the cache key.
	// Nil values are dropped.
	Params map[string]any

	// Headers are added to the outbound call.
	Headers map[string]string

	// Body is JSON-encoded on writes. Ignored by Get.
	Body any

	// Multipart switches a write to multipart/form-data. Multipart
	// writes cannot be queued offline.
	Multipart *dispatch.MultipartBody

	// TTL overrides the policy's default freshness window for this
	// read. Zero means the policy default; the policy's MaxTTL still
	// clamps.
	TTL time.Duration

	// ForceRefresh bypasses the cache read and always dispatches. The
	// fresh response still overwrites the cached entry.
	ForceRefresh bool

	// Retries after the first attempt. Zero means the dispatcher
	// default; negative disables retrying.
	Retries int
}
