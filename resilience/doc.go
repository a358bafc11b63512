// Package resilience provides retry with cancellable exponential backoff
// for the request dispatcher.
package resilience
