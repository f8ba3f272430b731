package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	platformerrors "github.com/yungbote/fablecast-backend/internal/platform/errors"
)

// enqueueJob creates a queued JobRun for the entity, enforcing one runnable
// run per record.
func enqueueJob(dbc dbctx.Context, jobRepo repos.JobRunRepo, ownerUserID uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*domain.JobRun, error) {
	running, err := jobRepo.ExistsRunnable(dbc, entityType, entityID, jobType)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("%w: %s %s", platformerrors.ErrAlreadyRunning, entityType, entityID)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := &domain.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      domain.JobQueued,
		Payload:     datatypes.JSON(raw),
	}
	if _, err := jobRepo.Create(dbc, []*domain.JobRun{job}); err != nil {
		return nil, err
	}
	return job, nil
}

// retryCountFromDetails reads RetryCount for records that keep it inside
// ProcessingDetails rather than in a column.
func retryCountFromDetails(raw datatypes.JSON) int {
	if len(raw) == 0 {
		return 0
	}
	var d domain.ProcessingDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0
	}
	return d.RetryCount
}
