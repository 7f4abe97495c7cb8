package broker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/cecil-the-coder/drivepool/pkg/pool"
	"github.com/cecil-the-coder/drivepool/pkg/types"
	"github.com/cecil-the-coder/drivepool/pkg/urlcache"
)

const (
	// DefaultRefreshEvery is the cadence of full refresh cycles
	DefaultRefreshEvery = 50 * time.Minute
	// DefaultRetryInterval separates retry passes within one cycle
	DefaultRetryInterval = time.Minute
	// DefaultMaxRefreshPasses bounds the passes of one cycle
	DefaultMaxRefreshPasses = 10
)

// ErrEmptyPath is returned for a resolve without a path
var ErrEmptyPath = errors.New("path is required")

// ConfigWriter persists a snapshot of the provider records
type ConfigWriter interface {
	WriteProviders(ctx context.Context, providers []types.ProviderConfig) error
}

// Options configures a Broker. Zero values take the defaults above.
type Options struct {
	RefreshEvery     time.Duration
	RetryInterval    time.Duration
	MaxRefreshPasses int
	// Writer receives snapshots after every refresh cycle; nil disables persistence
	Writer ConfigWriter
	Logger log.FieldLogger
}

// Broker is a cheap handle: copies made with Clone share all state
type Broker struct {
	pool   *pool.Pool
	cache  *urlcache.Cache
	fleet  *sync.RWMutex
	flight *singleflight.Group
	sup    *supervisor
	writer ConfigWriter
	opts   Options
	logger log.FieldLogger
}

// New wraps p and cache
func New(p *pool.Pool, cache *urlcache.Cache, opts Options) *Broker {
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = DefaultRefreshEvery
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRefreshPasses <= 0 {
		opts.MaxRefreshPasses = DefaultMaxRefreshPasses
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Broker{
		pool:   p,
		cache:  cache,
		fleet:  &sync.RWMutex{},
		flight: &singleflight.Group{},
		sup:    newSupervisor(),
		writer: opts.Writer,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Clone returns a handle sharing this broker's pool, cache, locks and supervisor
func (b *Broker) Clone() *Broker {
	c := *b
	return &c
}

// DownloadURL returns a temporary download URL for path. A fresh cache entry
// for (group, path) is returned without touching any provider. Otherwise the
// candidates are tried in order, providers that failed are paused and the
// result is cached. Concurrent misses for the same request share one resolve,
// which keeps running when the caller that started it goes away.
func (b *Broker) DownloadURL(ctx context.Context, path string, group types.SelectionGroup, candidates []string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if url, ok := b.cache.Get(group, path); ok {
		return url, nil
	}

	key := string(group) + "\x00" + path + "\x00" + strings.Join(candidates, ",")
	// The shared resolve outlives any single caller; each caller stops
	// waiting on its own context
	shared := context.WithoutCancel(ctx)
	ch := b.flight.DoChan(key, func() (interface{}, error) {
		b.fleet.RLock()
		res, err := b.pool.Resolve(shared, path, candidates)
		b.fleet.RUnlock()

		if len(res.Paused) > 0 {
			b.fleet.Lock()
			for _, id := range res.Paused {
				b.pool.Pause(id)
			}
			b.fleet.Unlock()
		}
		if err != nil {
			return "", err
		}

		b.cache.Set(group, path, res.URL)
		b.logger.WithField("path", path).WithField("provider", res.Provider).
			Debug("download url cached")
		return res.URL, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// Pause takes id out of selection for the pool's pause duration
func (b *Broker) Pause(id string) {
	b.fleet.Lock()
	defer b.fleet.Unlock()
	b.pool.Pause(id)
}

// RefreshTokens runs one refresh cycle: a pass over every provider, then
// passes over only the ones that failed, RetryInterval apart, up to
// MaxRefreshPasses. It returns the ids still failing at the end.
func (b *Broker) RefreshTokens(ctx context.Context) []string {
	var pending []string
	for pass := 1; pass <= b.opts.MaxRefreshPasses; pass++ {
		pending = b.refreshPass(ctx, pending)
		if len(pending) == 0 {
			return nil
		}
		b.logger.WithField("pass", pass).
			Warnf("%d providers failed to refresh: %s", len(pending), strings.Join(pending, ","))
		if pass == b.opts.MaxRefreshPasses {
			break
		}

		timer := time.NewTimer(b.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pending
		case <-timer.C:
		}
	}
	b.logger.Errorf("giving up on %d providers until the next cycle", len(pending))
	return pending
}

// refreshPass refreshes ids (all providers if empty) under the fleet write lock
func (b *Broker) refreshPass(ctx context.Context, ids []string) []string {
	b.fleet.Lock()
	defer b.fleet.Unlock()
	return b.pool.RefreshTokens(ctx, ids)
}

// Snapshot returns the current provider records
func (b *Broker) Snapshot() []types.ProviderConfig {
	b.fleet.RLock()
	defer b.fleet.RUnlock()
	return b.pool.Snapshot()
}

// Persist hands the current snapshot to the config writer
func (b *Broker) Persist(ctx context.Context) error {
	if b.writer == nil {
		return nil
	}
	if err := b.writer.WriteProviders(ctx, b.Snapshot()); err != nil {
		return err
	}
	b.logger.Debug("provider records persisted")
	return nil
}

// Stats is the combined pool, cache and refresh loop state
type Stats struct {
	Providers []pool.ProviderStats `json:"providers"`
	Cache     urlcache.Stats       `json:"cache"`
	Refresh   RefreshStatus        `json:"refresh"`
}

// Stats returns a point-in-time view of the broker
func (b *Broker) Stats() Stats {
	b.fleet.RLock()
	providers := b.pool.Stats()
	b.fleet.RUnlock()

	return Stats{
		Providers: providers,
		Cache:     b.cache.GetStats(),
		Refresh:   b.sup.status(),
	}
}
