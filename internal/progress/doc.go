// Package progress defines the tagged events a pipeline run emits and a
// non-blocking hub that batches them to pluggable sinks such as structured
// logs, Prometheus collectors, or a Pub/Sub topic.
package progress
