package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a new job scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Register schedules a job on a cron expression.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			log.Printf("❌ [SCHEDULER] Job %s failed: %v", job.Name(), err)
			return
		}
		log.Printf("✅ [SCHEDULER] Job %s completed in %v", job.Name(), time.Since(start))
	})
	if err != nil {
		return err
	}
	log.Printf("✅ [SCHEDULER] Registered job: %s (%s)", job.Name(), spec)
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("🚀 [SCHEDULER] Job scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("🛑 [SCHEDULER] Job scheduler stopped")
}
