package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
)

const (
	DefaultSyncInterval      = 45 * time.Second
	DefaultVisibilityBackoff = 3 * time.Second
)

// Trigger reasons.
const (
	TriggerMount        = "mount"
	TriggerInterval     = "interval"
	TriggerOnline       = "online"
	TriggerVisible      = "visible"
	TriggerManual       = "manual"
	TriggerRemoteChange = "remote-change"
)

type Syncer interface {
	Sync(ctx context.Context) (domain.SyncSummary, error)
}

// SyncScheduler turns environment events into sync cycles. Bursts of triggers
// coalesce; a trigger arriving while a cycle runs starts a new cycle, which
// supersedes the running one.
type SyncScheduler struct {
	syncer            Syncer
	interval          time.Duration
	visibilityBackoff time.Duration

	triggers chan string

	mu       sync.Mutex
	visTimer *time.Timer
}

func NewSyncScheduler(syncer Syncer, interval, visibilityBackoff time.Duration) *SyncScheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if visibilityBackoff <= 0 {
		visibilityBackoff = DefaultVisibilityBackoff
	}
	return &SyncScheduler{
		syncer:            syncer,
		interval:          interval,
		visibilityBackoff: visibilityBackoff,
		triggers:          make(chan string, 1),
	}
}

// Run fires a mount cycle, then serves triggers until ctx is done. It waits
// for in-flight cycles before returning.
func (s *SyncScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	start := func(reason string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runCycle(ctx, reason)
		}()
	}

	start(TriggerMount)

	for {
		select {
		case <-ctx.Done():
			s.stopVisibilityTimer()
			return ctx.Err()
		case <-ticker.C:
			start(TriggerInterval)
		case reason := <-s.triggers:
			start(reason)
		}
	}
}

func (s *SyncScheduler) runCycle(ctx context.Context, reason string) {
	summary, err := s.syncer.Sync(ctx)
	switch {
	case err == nil:
		log.Printf("[Scheduler] %s sync done: pushed=%d pulled=%d conflicts=%d",
			reason, summary.Pushed, summary.Pulled, summary.Conflicts)
	case errors.Is(err, context.Canceled):
		log.Printf("[Scheduler] %s sync superseded", reason)
	case errors.Is(err, ErrOffline):
		log.Printf("[Scheduler] %s sync skipped: offline", reason)
	default:
		log.Printf("[Scheduler] %s sync failed: %v", reason, err)
	}
}

// Trigger requests a cycle. It never blocks; a pending request absorbs new
// ones.
func (s *SyncScheduler) Trigger(reason string) {
	select {
	case s.triggers <- reason:
	default:
	}
}

func (s *SyncScheduler) OnOnline() {
	s.Trigger(TriggerOnline)
}

func (s *SyncScheduler) OnRemoteChange() {
	s.Trigger(TriggerRemoteChange)
}

// OnVisible schedules a cycle after the visibility backoff. Repeated calls
// within the window restart it.
func (s *SyncScheduler) OnVisible() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.visTimer != nil {
		s.visTimer.Stop()
	}
	s.visTimer = time.AfterFunc(s.visibilityBackoff, func() {
		s.Trigger(TriggerVisible)
	})
}

func (s *SyncScheduler) stopVisibilityTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.visTimer != nil {
		s.visTimer.Stop()
		s.visTimer = nil
	}
}
