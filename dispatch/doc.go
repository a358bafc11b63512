// Package dispatch performs one logical network call against the remote
// API: it attaches the bearer credential and tenant-scope header, encodes
// JSON or multipart bodies, retries transport-level failures with
// exponential backoff, and normalizes every outcome into the response
// envelope or a tagged error.
package dispatch
