package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/feishu-digest-bot/internal/biz/domain"
	"github.com/anthropics/feishu-digest-bot/internal/biz/usecase"
)

// maintenanceInterval is how often orphaned buffers are dropped and the
// retention horizon enforced outside the weekly run.
const maintenanceInterval = 6 * time.Hour

// Scheduler drives all trigger detection from a single minute-aligned
// tick. A tick that lands inside a matching minute fires its entries
// exactly once; minutes missed while the process is down are missed
// permanently.
type Scheduler struct {
	loc      *time.Location
	daily    []domain.ScheduleEntry
	weekly   domain.ScheduleEntry
	fanout   *Fanout
	bufferUC *usecase.BufferUsecase
	tenantUC *usecase.TenantUsecase

	lastFired string // "2006-01-02 15:04" of the last minute handled

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler matching the given tables in loc.
func NewScheduler(loc *time.Location, daily []domain.ScheduleEntry, weekly domain.ScheduleEntry, fanout *Fanout, bufferUC *usecase.BufferUsecase, tenantUC *usecase.TenantUsecase) *Scheduler {
	return &Scheduler{
		loc:      loc,
		daily:    daily,
		weekly:   weekly,
		fanout:   fanout,
		bufferUC: bufferUC,
		tenantUC: tenantUC,
	}
}

// Start starts the tick and maintenance loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.tickLoop()
	go s.maintenanceLoop()

	fmt.Printf("[Scheduler] Started (%s): daily 06:00/12:00/18:00, weekly Monday 06:00\n", s.loc)
}

// Stop stops the scheduler and waits for the loops to exit. An in-flight
// fan-out finishes its current run.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	fmt.Println("[Scheduler] Stopped")
}

// tickLoop wakes at every minute boundary. Aligning the sleep to the
// boundary, rather than using a free-running ticker, guarantees at most
// one tick per wall-clock minute.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	for {
		next := time.Now().Truncate(time.Minute).Add(time.Minute)
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(time.Until(next)):
			s.onTick(time.Now().In(s.loc))
		}
	}
}

// onTick matches the current wall-clock minute against the schedule tables
// and runs any triggers.
func (s *Scheduler) onTick(now time.Time) {
	minute := now.Format("2006-01-02 15:04")
	if minute == s.lastFired {
		return
	}
	s.lastFired = minute

	daily, weekly := TriggersAt(now, s.daily, s.weekly)
	for _, entry := range daily {
		fmt.Printf("[Scheduler] %s: firing %s (lookback %dh)\n", minute, entry.Label, entry.LookbackHours)
		s.fanout.RunAll(s.ctx, entry)
	}
	if weekly != nil {
		fmt.Printf("[Scheduler] %s: firing %s (lookback %dh)\n", minute, weekly.Label, weekly.LookbackHours)
		s.fanout.RunAll(s.ctx, *weekly)
		// The weekly run covers the whole retention window, so everything
		// older than the horizon is dead weight afterwards.
		removed := s.bufferUC.Prune()
		fmt.Printf("[Scheduler] Post-weekly prune removed %d messages\n", removed)
	}
}

// TriggersAt returns the daily entries and the optional weekly entry that
// fire at the given local instant.
func TriggersAt(now time.Time, daily []domain.ScheduleEntry, weekly domain.ScheduleEntry) ([]domain.ScheduleEntry, *domain.ScheduleEntry) {
	var fired []domain.ScheduleEntry
	for _, entry := range daily {
		if entry.Matches(now) {
			fired = append(fired, entry)
		}
	}
	if weekly.Matches(now) {
		return fired, &weekly
	}
	return fired, nil
}

// maintenanceLoop periodically drops buffers for tenants that are no
// longer registered and enforces the retention horizon.
func (s *Scheduler) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.maintain()
		}
	}
}

func (s *Scheduler) maintain() {
	live, err := s.tenantUC.LiveTenantIDs(s.ctx)
	if err != nil {
		fmt.Printf("[Scheduler] Maintenance: failed to list tenants: %v\n", err)
	} else if dropped := s.bufferUC.DropOrphans(live); len(dropped) > 0 {
		fmt.Printf("[Scheduler] Maintenance: dropped orphaned buffers for %v\n", dropped)
	}

	removed := s.bufferUC.Prune()
	fmt.Printf("[Scheduler] Maintenance: pruned %d expired messages\n", removed)
}
