// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /parser/start and /parser/quick-populate to run the parser.
//   - GET /parser/status for the current state, live progress of a running
//     run and the last run summary.
package api
