// Package middleware provides HTTP middleware components for the drivepool server:
// request id tracking, request logging, panic recovery, bearer-key
// authentication and per-client rate limiting.
package middleware
