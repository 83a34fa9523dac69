// Package api hosts the HTTP server, middleware and handlers. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/... JSON endpoints for projects, the wizard, logs, chat and exports.
//   - GET / plus POST /ui/... for the server-rendered dashboard. Every UI post
//     mutates the caller's session or the registry and redirects back to /.
package api
