package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobType defines the kind of work the scheduler runs
type JobType int

const (
	TickJob   JobType = iota // 评估全部bot
	DigestJob                // 发送最近一小时的成交摘要
	ReportJob                // 发送日报
)

func (t JobType) String() string {
	switch t {
	case TickJob:
		return "tick"
	case DigestJob:
		return "digest"
	case ReportJob:
		return "report"
	}
	return fmt.Sprintf("job(%d)", int(t))
}

// Job is a request to run one handler
type Job struct {
	Type      JobType
	Requested time.Time
}

// Handler processes one job
type Handler func(ctx context.Context, job Job) error

type schedule struct {
	job   JobType
	every time.Duration
}

// Scheduler runs all jobs serially on a single goroutine, so two ticks never overlap
// and reports never read the ledger in the middle of a tick.
type Scheduler struct {
	handlers  map[JobType]Handler
	schedules []schedule
	jobChan   chan Job
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	logger    *zap.Logger
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		handlers: make(map[JobType]Handler),
		jobChan:  make(chan Job, 16),
		stopChan: make(chan struct{}),
		logger:   logger,
	}
}

// Handle registers the handler for a job type. Must be called before Start.
func (s *Scheduler) Handle(t JobType, h Handler) {
	s.handlers[t] = h
}

// Every dispatches the job at a fixed cadence. Must be called before Start.
func (s *Scheduler) Every(t JobType, d time.Duration) {
	if d > 0 {
		s.schedules = append(s.schedules, schedule{job: t, every: d})
	}
}

// Start begins the job loop and one ticker goroutine per schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.jobLoop(ctx)
	for _, sc := range s.schedules {
		s.wg.Add(1)
		go s.tickerLoop(ctx, sc)
	}
	s.logger.Sugar().Infof("Scheduler started with %d schedules.", len(s.schedules))
}

// Stop gracefully shuts down the scheduler and waits for the running job to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Sugar().Info("Scheduler stopped.")
}

// Dispatch queues a job without blocking. Returns false if the queue is full or the scheduler is stopped.
func (s *Scheduler) Dispatch(job Job) bool {
	if job.Requested.IsZero() {
		job.Requested = time.Now()
	}
	select {
	case <-s.stopChan:
		return false
	default:
	}
	select {
	case s.jobChan <- job:
		return true
	default:
		s.logger.Sugar().Warnf("Job queue full, dropping %s job.", job.Type)
		return false
	}
}

func (s *Scheduler) tickerLoop(ctx context.Context, sc schedule) {
	defer s.wg.Done()
	ticker := time.NewTicker(sc.every)
	defer ticker.Stop()
	for {
		select {
		case t := <-ticker.C:
			s.Dispatch(Job{Type: sc.job, Requested: t})
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// jobLoop handles all queued jobs serially.
func (s *Scheduler) jobLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobChan:
			s.run(ctx, job)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	h, ok := s.handlers[job.Type]
	if !ok {
		s.logger.Sugar().Warnf("No handler registered for %s job.", job.Type)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Sugar().Errorf("CRITICAL: %s job panicked: %v", job.Type, r)
		}
	}()
	start := time.Now()
	if err := h(ctx, job); err != nil {
		s.logger.Sugar().Errorf("%s job failed: %v", job.Type, err)
		return
	}
	s.logger.Sugar().Debugf("%s job finished in %s.", job.Type, time.Since(start))
}
