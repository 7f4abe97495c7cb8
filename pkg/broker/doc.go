// Package broker is the shared entry point of a drive pool. It puts the URL
// cache in front of the provider pool, guards the fleet with a read/write
// lock and runs the periodic token refresh.
//
// Resolves only take the fleet read lock, so they run concurrently with each
// other. Pausing a provider and refresh passes take the write lock. The cache
// has its own lock, so hits never wait on provider traffic.
//
//	b := broker.New(p, urlcache.New(urlcache.DefaultConfig()), broker.Options{Writer: w})
//	b.Start(ctx)
//	defer b.Stop()
//
//	url, err := b.DownloadURL(ctx, "/a.zip", types.GroupFast, []string{"p1", "p2"})
package broker
