package jobs

import (
	"context"
	"log"
	"time"

	"boardroom/internal/services"
)

// StaleSessionCleanupJob prunes sessions with no activity for longer than the
// configured retention window, along with their messages.
type StaleSessionCleanupJob struct {
	sessions *services.SessionService
	maxAge   time.Duration
}

// NewStaleSessionCleanupJob creates a new stale session cleanup job
func NewStaleSessionCleanupJob(sessions *services.SessionService, maxAge time.Duration) *StaleSessionCleanupJob {
	return &StaleSessionCleanupJob{sessions: sessions, maxAge: maxAge}
}

// Name returns the job name.
func (j *StaleSessionCleanupJob) Name() string {
	return "stale-session-cleanup"
}

// Run deletes all sessions older than the retention window.
func (j *StaleSessionCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.sessions.DeleteStaleSessions(ctx, j.maxAge)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("🧹 [CLEANUP] Removed %d stale sessions (inactive > %v)", deleted, j.maxAge)
	}
	return nil
}
