package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	platformerrors "github.com/yungbote/fablecast-backend/internal/platform/errors"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type JobService interface {
	Get(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error)
	Cancel(dbc dbctx.Context, id uuid.UUID) error
}

type jobService struct {
	log     *logger.Logger
	jobRepo repos.JobRunRepo
}

func NewJobService(jobRepo repos.JobRunRepo, log *logger.Logger) (JobService, error) {
	if jobRepo == nil || log == nil {
		return nil, fmt.Errorf("job service dependencies missing")
	}
	return &jobService{log: log.With("service", "JobService"), jobRepo: jobRepo}, nil
}

func (s *jobService) Get(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	job, err := s.jobRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", platformerrors.ErrNotFound, id)
	}
	return job, nil
}

// Cancel flips a non-terminal run to canceled; the pipelines honor it between
// units of work and the runtime refuses further lifecycle writes.
func (s *jobService) Cancel(dbc dbctx.Context, id uuid.UUID) error {
	job, err := s.Get(dbc, id)
	if err != nil {
		return err
	}
	if job.Status == domain.JobSucceeded || job.Status == domain.JobFailed || job.Status == domain.JobCanceled {
		return fmt.Errorf("%w: job %s is already %s", platformerrors.ErrInvalidArgument, id, job.Status)
	}
	ok, err := s.jobRepo.UpdateFieldsUnlessStatus(dbc, id, []string{domain.JobSucceeded, domain.JobFailed, domain.JobCanceled}, map[string]interface{}{
		"status": domain.JobCanceled,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s finished before it could be canceled", platformerrors.ErrInvalidArgument, id)
	}
	s.log.Info("Job canceled", "job_id", id)
	return nil
}
