// Package observe provides structured logging and OpenTelemetry telemetry
// for the data-access layer.
//
// It exposes a Logger interface with a JSON implementation, a Metrics
// interface recording API call durations, cache hit/miss counters, and
// offline-queue activity, and an Observer that wires metric and trace
// providers from configuration.
package observe
