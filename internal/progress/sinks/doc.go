// Package sinks implements progress consumers: structured logging and a live
// per-run tally read by the HTTP status endpoint.
package sinks
