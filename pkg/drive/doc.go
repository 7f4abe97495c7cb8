// Package drive implements the client for one Microsoft Graph drive account.
//
// A Client owns its HTTP transport, the OAuth refresh-token cycle and the
// resolution of a drive path into a short-lived download URL:
//
//	client := drive.NewClient(cfg, drive.ClientOptions{})
//	if err := client.Initialize(ctx); err != nil {
//	    // the drive root id is unknown, every DownloadURL will fail
//	}
//	link, err := client.DownloadURL(ctx, "/games/a.zip")
//
// Errors returned by DownloadURL are *types.ProviderError values. A 400 from
// Graph is reported as types.ErrCodeNotFound, every other failure as one of
// the "try another provider" codes.
//
// Refresh tokens are single use upstream: a successful RefreshToken replaces
// both tokens, and Config returns the rotated record for persistence.
package drive
