package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ScheduleTime is a time of day the scheduler fires at.
type ScheduleTime struct {
	Hour   int
	Minute int
}

func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses HH:MM.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}
	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}
	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// JobProvider lists the jobs of one run.
type JobProvider func(ctx context.Context) ([]Job, error)

type Config struct {
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
	JobProvider   JobProvider
}

// Scheduler submits the provider's jobs to a worker pool at fixed times of
// day.
type Scheduler struct {
	workerPool    *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider
	now           func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun string
	mu      sync.Mutex
}

func New(cfg Config) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(cfg.ScheduleTimes))
	for _, raw := range cfg.ScheduleTimes {
		st, err := ParseScheduleTime(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", raw, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}
	if len(scheduleTimes) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}
	if cfg.JobProvider == nil {
		return nil, errors.New("job provider is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	log.Info().
		Strs("times", cfg.ScheduleTimes).
		Int("workers", cfg.WorkerCount).
		Dur("job_delay", cfg.JobDelay).
		Msg("scheduler initialized")

	return &Scheduler{
		workerPool:    NewWorkerPool(cfg.WorkerCount, cfg.JobDelay, cfg.QueueSize),
		scheduleTimes: scheduleTimes,
		runOnStartup:  cfg.RunOnStartup,
		jobProvider:   cfg.JobProvider,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func (s *Scheduler) Start() {
	s.workerPool.Start()

	if s.runOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJobs()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Info().Time("next_run", s.NextRun()).Msg("scheduler started")
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			if s.shouldRun(now) {
				log.Info().Str("at", now.Format("15:04")).Msg("scheduled run triggered")
				s.runJobs()
			}
		}
	}
}

// shouldRun reports whether now matches a schedule time that has not fired
// yet in this minute.
func (s *Scheduler) shouldRun(now time.Time) bool {
	key := now.Format("2006-01-02T15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == key {
		return false
	}
	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRun = key
			return true
		}
	}
	return false
}

func (s *Scheduler) runJobs() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch jobs")
		return
	}
	if len(jobs) == 0 {
		log.Info().Msg("no jobs to process")
		return
	}
	s.workerPool.SubmitBatch(jobs)
}

// TriggerNow starts a run outside the schedule.
func (s *Scheduler) TriggerNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobs()
	}()
}

// Shutdown stops the schedule loop and drains the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("timeout waiting for scheduler loop to stop")
	}

	s.workerPool.Shutdown(timeout)
	log.Info().Msg("scheduler stopped")
}

// NextRun returns the next scheduled run time.
func (s *Scheduler) NextRun() time.Time {
	return nextRun(s.now(), s.scheduleTimes)
}

func nextRun(now time.Time, times []ScheduleTime) time.Time {
	var best time.Time
	for _, st := range times {
		t := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		if best.IsZero() || t.Before(best) {
			best = t
		}
	}
	return best
}

// RunOnce runs every job of one provider call sequentially and returns the
// joined job errors.
func RunOnce(ctx context.Context, provider JobProvider) (int, error) {
	jobs, err := provider(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch jobs: %w", err)
	}

	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return len(jobs), err
		}
		if err := runJob(ctx, 0, job); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", job.Description(), job.Subject(), err))
		}
	}
	return len(jobs), errors.Join(errs...)
}
