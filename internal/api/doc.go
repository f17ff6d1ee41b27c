// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/projects and /v1/inspections for submitting pages to inspect.
//   - GET /v1/queue for the pending/processing/failed work view.
//   - GET /v1/runs and /v1/runs/{id}/sites for progress reporting via the
//     ProgressRepository interface.
package api
