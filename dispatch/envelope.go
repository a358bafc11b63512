package dispatch

import (
	"encoding/json"
	"fmt"
)

// Envelope is the response wrapper every endpoint returns. Caching and
// UI-surfacing logic key off Success, not solely the transport status.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  []FieldError    `json:"errors,omitempty"`

	// Queued marks a synthetic acknowledgement produced for a write
	// accepted into the offline queue instead of being dispatched.
	Queued bool `json:"queued,omitempty"`
}

// FieldError is one entry of structured validation detail.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DecodeData unmarshals the envelope payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("dispatch: decode envelope data: %w", err)
	}
	return nil
}

// parseEnvelope decodes a response body. Returns nil when the body is not
// an envelope at all (HTML error pages, proxies, empty bodies).
func parseEnvelope(body []byte) *Envelope {
	if len(body) == 0 {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	return &env
}
