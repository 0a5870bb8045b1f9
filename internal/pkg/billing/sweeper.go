package billing

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultSweepInterval is how often stale active subscriptions are demoted.
const DefaultSweepInterval = time.Hour

// Sweeper periodically expires stale subscriptions independent of inbound
// webhook traffic. It is a process-lifetime background task with an explicit
// Start/Stop lifecycle; ticks that fail are logged and the next tick runs
// normally.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper over the given service. A non-positive
// interval falls back to the default hourly period.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate stop channel for each start cycle so the sweeper can be
	// restarted safely.
	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(s.interval)

	s.wg.Add(1)
	go s.run()

	log.Infof("[Sweeper] Started with interval %s", s.interval)
}

// Stop cancels the sweep loop and waits for the in-flight tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("[Sweeper] Stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ticker.C:
			s.Tick()
		case <-s.stopCh:
			return
		}
	}
}

// Tick runs one sweep pass. Exposed so tests and operators can trigger a
// sweep without waiting for the timer.
func (s *Sweeper) Tick() {
	swept, err := s.svc.SweepExpired(context.Background())
	if err != nil {
		log.Errorf("[Sweeper] Expiry sweep failed: %v", err)
		return
	}
	if swept > 0 {
		log.Infof("[Sweeper] Expired %d subscription(s)", swept)
	}
}
