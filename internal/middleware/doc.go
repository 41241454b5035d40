// Package middleware provides HTTP middleware for the dedup server.
//
// It includes:
//   - Request IDs (X-Request-ID, generated with google/uuid when absent)
//   - Access logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path labels
package middleware
