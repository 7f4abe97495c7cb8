// Package handlers provides the HTTP request handlers of the drivepool server:
// health checks, provider statistics and administration, and download URL
// resolution, along with utilities for standardized JSON responses.
package handlers
