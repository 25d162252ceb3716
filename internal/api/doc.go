// Package api hosts the read-only reporting server. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/rankings for the ranked channel list.
//   - GET /v1/channels/{channel} for one channel; the channel URL is
//     path-escaped, or given as a bare @handle.
package api
