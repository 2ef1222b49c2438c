// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/run to start a pipeline run, POST /v1/run/stop to stop it,
//     GET /v1/run for the current phase and GET|DELETE /v1/run/logs for the
//     timestamped progress lines of the current or last run.
//   - GET /v1/records, /v1/records/stats and /v1/records/{name} to inspect
//     stored records; DELETE /v1/records wipes the store.
package api
