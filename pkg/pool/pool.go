// Package pool owns a fleet of drive providers and implements ordered
// failover across a caller-supplied candidate list.
//
// A Pool is not safe for concurrent use on its own. Resolve, Stats and
// Snapshot may run concurrently with each other; Pause and RefreshTokens
// mutate the availability state and must be serialized against everything
// else. The broker package provides that locking.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	pkghttp "github.com/cecil-the-coder/drivepool/pkg/http"
	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// MaxConcurrentRefreshes bounds how many token exchanges run at once
const MaxConcurrentRefreshes = 10

// Client is one provider account as seen by the pool. *drive.Client
// implements it.
type Client interface {
	ID() string
	Initialize(ctx context.Context) error
	ResolveRoot(ctx context.Context) error
	DownloadURL(ctx context.Context, path string) (string, error)
	RefreshToken(ctx context.Context) error
	Config() types.ProviderConfig
	Ready() bool
}

// TransportReporter is implemented by clients that keep HTTP metrics; their
// numbers are included in Stats
type TransportReporter interface {
	TransportMetrics() pkghttp.ClientMetrics
}

// Options tunes pool behaviour. The zero value is usable.
type Options struct {
	// PauseDuration defaults to DefaultPauseDuration
	PauseDuration time.Duration
	// ExcludeUnrooted keeps providers whose drive root never resolved out of
	// selection until a refresh resolves it
	ExcludeUnrooted bool
	// FailOnUnrooted makes New return an error for such providers instead
	FailOnUnrooted bool
	// Now defaults to time.Now
	Now    func() time.Time
	Logger log.FieldLogger
}

// Pool is the provider fleet plus its availability state
type Pool struct {
	clients  []Client
	byID     map[string]Client
	tracker  *Tracker
	metrics  map[string]*providerMetrics
	excluded map[string]bool

	pauseDuration time.Duration
	logger        log.FieldLogger
}

// Result is the outcome of a resolve
type Result struct {
	URL string
	// Provider served URL, empty on failure
	Provider string
	// Paused lists the providers that failed non-terminally and must be paused
	Paused []string
}

// New registers every client and initializes them concurrently. One client's
// failure never aborts another's initialization.
func New(ctx context.Context, clients []Client, opts Options) (*Pool, error) {
	if opts.PauseDuration <= 0 {
		opts.PauseDuration = DefaultPauseDuration
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	p := &Pool{
		clients:       clients,
		byID:          make(map[string]Client, len(clients)),
		tracker:       NewTracker(opts.Now),
		metrics:       make(map[string]*providerMetrics, len(clients)),
		excluded:      make(map[string]bool),
		pauseDuration: opts.PauseDuration,
		logger:        opts.Logger,
	}

	for _, c := range clients {
		id := c.ID()
		if _, dup := p.byID[id]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", id)
		}
		p.byID[id] = c
		p.metrics[id] = newProviderMetrics()
		p.tracker.Register(id)
	}

	initErrs := make([]error, len(clients))
	var g errgroup.Group
	for i, c := range clients {
		g.Go(func() error {
			initErrs[i] = c.Initialize(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range initErrs {
		if err == nil {
			continue
		}
		id := clients[i].ID()
		unrooted := errors.Is(err, types.ErrRootUnresolved) || !clients[i].Ready()
		if !unrooted {
			p.logger.WithField("provider", id).Warnf("provider initialization failed: %v", err)
			continue
		}
		if opts.FailOnUnrooted {
			return nil, fmt.Errorf("provider %s: %w", id, err)
		}
		if opts.ExcludeUnrooted {
			p.tracker.Exclude(id)
			p.excluded[id] = true
			p.logger.WithField("provider", id).Warn("drive root unresolved, provider excluded until refreshed")
			continue
		}
		p.logger.WithField("provider", id).Warn("drive root unresolved, provider degraded")
	}

	p.logger.WithField("providers", len(clients)).Info("provider pool initialized")
	return p, nil
}

// Resolve tries candidates strictly in order. Unknown and paused ids are
// skipped. A not-found answer ends the call at once without pausing anyone;
// any other failure moves on to the next candidate and marks the provider
// for pausing in the result.
func (p *Pool) Resolve(ctx context.Context, path string, candidates []string) (Result, error) {
	var (
		res       Result
		lastErr   error
		attempted int
	)
	tried := make(map[string]bool, len(candidates))

	for _, id := range candidates {
		client, ok := p.byID[id]
		if !ok || tried[id] || !p.tracker.IsAvailable(id) {
			continue
		}
		tried[id] = true
		attempted++

		start := time.Now()
		link, err := client.DownloadURL(ctx, path)
		notFound := types.IsNotFound(err)
		p.metrics[id].recordResolve(time.Since(start), err, notFound)

		if err == nil {
			res.URL = link
			res.Provider = id
			return res, nil
		}
		if notFound {
			return res, err
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		p.logger.WithField("provider", id).WithField("path", path).
			Warnf("provider failed, trying next candidate: %v", err)
		res.Paused = append(res.Paused, id)
		lastErr = err
	}

	if attempted == 0 {
		return res, types.ErrServiceUnavailable
	}
	return res, types.NewExhaustedError(attempted, lastErr)
}

// Pause takes id out of selection for the configured pause duration. An
// excluded provider stays excluded until a refresh resolves its root.
func (p *Pool) Pause(id string) {
	if _, ok := p.byID[id]; !ok {
		return
	}
	if p.excluded[id] {
		p.logger.WithField("provider", id).Info("provider is excluded, pause ignored")
		return
	}
	p.tracker.Pause(id, p.pauseDuration)
	p.metrics[id].recordPause()
	p.logger.WithField("provider", id).Infof("provider paused for %s", p.pauseDuration)
}

// IsAvailable reports whether id is currently selectable
func (p *Pool) IsAvailable(id string) bool {
	return p.tracker.IsAvailable(id)
}

// RefreshTokens refreshes the listed providers, or all of them when ids is
// empty, and returns the ids whose refresh failed in sorted order. A client
// whose drive root is still unresolved gets another root lookup after a
// successful refresh; an excluded client becomes selectable once it resolves.
func (p *Pool) RefreshTokens(ctx context.Context, ids []string) []string {
	targets := p.clients
	if len(ids) > 0 {
		targets = make([]Client, 0, len(ids))
		for _, id := range ids {
			c, ok := p.byID[id]
			if !ok {
				p.logger.WithField("provider", id).Warn("refresh requested for unknown provider")
				continue
			}
			targets = append(targets, c)
		}
	}

	failed := make([]bool, len(targets))
	rooted := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentRefreshes)
	for i, c := range targets {
		g.Go(func() error {
			id := c.ID()
			err := c.RefreshToken(gctx)
			p.metrics[id].recordRefresh(err)
			if err != nil {
				failed[i] = true
				p.logger.WithField("provider", id).Warnf("token refresh failed: %v", err)
				return nil
			}
			if !c.Ready() {
				if err := c.ResolveRoot(gctx); err != nil {
					p.logger.WithField("provider", id).Warnf("drive root still unresolved: %v", err)
					return nil
				}
				rooted[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for i, c := range targets {
		id := c.ID()
		if rooted[i] && p.excluded[id] {
			delete(p.excluded, id)
			p.tracker.Register(id)
			p.logger.WithField("provider", id).Info("drive root resolved, provider back in selection")
		}
		if failed[i] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the current provider records, rotated tokens included, in
// configuration order
func (p *Pool) Snapshot() []types.ProviderConfig {
	out := make([]types.ProviderConfig, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c.Config())
	}
	return out
}

// IDs returns the provider ids in configuration order
func (p *Pool) IDs() []string {
	out := make([]string, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c.ID())
	}
	return out
}

// Stats returns per-provider metrics in configuration order
func (p *Pool) Stats() []ProviderStats {
	out := make([]ProviderStats, 0, len(p.clients))
	now := p.tracker.now()
	for _, c := range p.clients {
		id := c.ID()
		s := ProviderStats{
			ID:        id,
			Region:    string(c.Config().Region),
			Ready:     c.Ready(),
			Available: p.tracker.IsAvailable(id),
			Excluded:  p.excluded[id],
		}
		if until, ok := p.tracker.Until(id); ok && until.After(now) && !s.Excluded {
			u := until
			s.PausedTil = &u
		}
		p.metrics[id].fill(&s)
		if r, ok := c.(TransportReporter); ok {
			m := r.TransportMetrics()
			s.Transport = &m
		}
		out = append(out, s)
	}
	return out
}
