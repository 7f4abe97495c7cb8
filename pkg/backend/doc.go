// Package backend provides the HTTP server in front of a drive pool broker.
//
// The server is organized into two sub-packages:
//
//   - handlers: health checks, provider statistics and administration, and
//     download URL resolution
//   - middleware: request ids, logging, panic recovery, API key
//     authentication and per-client rate limiting
//
// # Routes
//
//	GET  /health                       fleet health, 503 when nothing is available
//	GET  /status                       liveness
//	GET  /version                      build version
//	GET  /api/url                      resolve ?path=&providers=p1,p2[&group=][&redirect=1]
//	GET  /api/providers                provider, cache and refresh statistics
//	GET  /api/providers/{id}           one provider's statistics
//	POST /api/providers/{id}/pause     take a provider out of selection
//	POST /api/providers/refresh        queue a token refresh cycle
//
// # Example
//
//	server := backend.NewServer(cfg, b, logger)
//	if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	    logger.Fatal(err)
//	}
package backend
