package broker

import (
	"context"
	"sync"
	"time"
)

// supervisor owns the background refresh loop of a broker
type supervisor struct {
	// ctl serializes Start and Stop; the loop itself never takes it
	ctl    sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	kick   chan struct{}

	mu          sync.Mutex
	running     bool
	cycles      int
	lastCycle   time.Time
	lastFailed  []string
	lastPersist error
}

func newSupervisor() *supervisor {
	return &supervisor{kick: make(chan struct{}, 1)}
}

// RefreshStatus describes the refresh loop
type RefreshStatus struct {
	Running      bool      `json:"running"`
	Cycles       int       `json:"cycles"`
	LastCycle    time.Time `json:"last_cycle,omitempty"`
	LastFailed   []string  `json:"last_failed,omitempty"`
	PersistError string    `json:"persist_error,omitempty"`
}

func (s *supervisor) status() RefreshStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := RefreshStatus{
		Running:    s.running,
		Cycles:     s.cycles,
		LastCycle:  s.lastCycle,
		LastFailed: append([]string(nil), s.lastFailed...),
	}
	if s.lastPersist != nil {
		st.PersistError = s.lastPersist.Error()
	}
	return st
}

// Start launches the refresh loop. Each cycle runs RefreshTokens and then
// Persist, every RefreshEvery or when TriggerRefresh is called. Only one loop
// is kept alive: starting again stops the previous one first.
func (b *Broker) Start(parent context.Context) {
	s := b.sup
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.setRunning(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		b.run(ctx)
	}()
	b.logger.WithField("every", b.opts.RefreshEvery.String()).Info("token refresh loop started")
}

// Stop cancels the refresh loop and waits for it to return
func (b *Broker) Stop() {
	s := b.sup
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if s.stopLocked() {
		b.logger.Info("token refresh loop stopped")
	}
}

func (s *supervisor) stopLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
	s.setRunning(false)
	return true
}

func (s *supervisor) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// TriggerRefresh asks the running loop for an immediate cycle. It returns
// false when the loop is not running or a cycle is already queued.
func (b *Broker) TriggerRefresh() bool {
	s := b.sup
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return false
	}
	select {
	case s.kick <- struct{}{}:
		return true
	default:
		return false
	}
}

func (b *Broker) run(ctx context.Context) {
	ticker := time.NewTicker(b.opts.RefreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.sup.kick:
		}
		b.cycle(ctx)
	}
}

func (b *Broker) cycle(ctx context.Context) {
	failed := b.RefreshTokens(ctx)
	if ctx.Err() != nil {
		return
	}
	err := b.Persist(ctx)
	if err != nil {
		b.logger.Errorf("failed to persist provider records: %v", err)
	}

	s := b.sup
	s.mu.Lock()
	s.cycles++
	s.lastCycle = time.Now()
	s.lastFailed = failed
	s.lastPersist = err
	s.mu.Unlock()
}
