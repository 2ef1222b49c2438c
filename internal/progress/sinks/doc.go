// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors, and a publisher that forwards finalized records.
package sinks
