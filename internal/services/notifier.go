package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/clients/redis"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

// JobNotifier is the side channel for job lifecycle events. Publishing is
// best-effort; the database row remains the source of truth.
type JobNotifier interface {
	JobProgress(ownerUserID uuid.UUID, job *domain.JobRun, stage string, pct int, msg string)
	JobFailed(ownerUserID uuid.UUID, job *domain.JobRun, stage string, msg string)
	JobDone(ownerUserID uuid.UUID, job *domain.JobRun)
}

type busNotifier struct {
	log *logger.Logger
	bus redis.ProgressBus
}

func NewBusNotifier(bus redis.ProgressBus, log *logger.Logger) JobNotifier {
	return &busNotifier{log: log.With("service", "JobNotifier"), bus: bus}
}

func (n *busNotifier) publish(job *domain.JobRun, status string, pct int, msg string) {
	if n.bus == nil || job == nil {
		return
	}
	entityID := ""
	if job.EntityID != nil {
		entityID = job.EntityID.String()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := n.bus.Publish(ctx, redis.ProgressEvent{
		EntityType: job.EntityType,
		EntityID:   entityID,
		Status:     status,
		Progress:   pct,
		Message:    msg,
		At:         time.Now(),
	})
	if err != nil {
		n.log.Warn("Progress publish failed", "job_id", job.ID, "error", err)
	}
}

func (n *busNotifier) JobProgress(_ uuid.UUID, job *domain.JobRun, stage string, pct int, msg string) {
	n.publish(job, domain.JobRunning, pct, msg)
}

func (n *busNotifier) JobFailed(_ uuid.UUID, job *domain.JobRun, stage string, msg string) {
	n.publish(job, domain.JobFailed, job.Progress, msg)
}

func (n *busNotifier) JobDone(_ uuid.UUID, job *domain.JobRun) {
	n.publish(job, domain.JobSucceeded, 100, "")
}

// NoopNotifier is used in tests and when Redis is not configured.
type NoopNotifier struct{}

func (NoopNotifier) JobProgress(uuid.UUID, *domain.JobRun, string, int, string) {}
func (NoopNotifier) JobFailed(uuid.UUID, *domain.JobRun, string, string)        {}
func (NoopNotifier) JobDone(uuid.UUID, *domain.JobRun)                          {}
