package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	platformerrors "github.com/yungbote/fablecast-backend/internal/platform/errors"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/progress"
)

type CreateAudioInput struct {
	EbookID     uuid.UUID
	AudioMethod string
	Title       string
}

type AudioService interface {
	Create(dbc dbctx.Context, in CreateAudioInput) (*domain.AudioCollection, *domain.JobRun, error)
	Resume(dbc dbctx.Context, collectionID uuid.UUID) (*domain.JobRun, error)
	Status(dbc dbctx.Context, collectionID uuid.UUID) (*domain.PollStatus, error)
	Get(dbc dbctx.Context, collectionID uuid.UUID) (*domain.AudioCollection, []*domain.Audio, error)
}

type audioService struct {
	log            *logger.Logger
	ebookRepo      repos.EbookRepo
	collectionRepo repos.AudioCollectionRepo
	audioRepo      repos.AudioRepo
	jobRepo        repos.JobRunRepo
}

func NewAudioService(
	ebookRepo repos.EbookRepo,
	collectionRepo repos.AudioCollectionRepo,
	audioRepo repos.AudioRepo,
	jobRepo repos.JobRunRepo,
	log *logger.Logger,
) (AudioService, error) {
	if ebookRepo == nil || collectionRepo == nil || audioRepo == nil || jobRepo == nil || log == nil {
		return nil, fmt.Errorf("audio service dependencies missing")
	}
	return &audioService{
		log:            log.With("service", "AudioService"),
		ebookRepo:      ebookRepo,
		collectionRepo: collectionRepo,
		audioRepo:      audioRepo,
		jobRepo:        jobRepo,
	}, nil
}

func (s *audioService) Create(dbc dbctx.Context, in CreateAudioInput) (*domain.AudioCollection, *domain.JobRun, error) {
	method := strings.ToLower(strings.TrimSpace(in.AudioMethod))
	if method != domain.AudioMethodTTS && method != domain.AudioMethodGPT4o {
		return nil, nil, fmt.Errorf("%w: unknown audio method %q", platformerrors.ErrInvalidArgument, in.AudioMethod)
	}

	eb, err := s.ebookRepo.GetByID(dbc, in.EbookID)
	if err != nil {
		return nil, nil, err
	}
	if eb == nil {
		return nil, nil, fmt.Errorf("%w: ebook %s", platformerrors.ErrNotFound, in.EbookID)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = eb.Title
	}
	ebookID := eb.ID
	col := &domain.AudioCollection{
		ID:          uuid.New(),
		OwnerUserID: eb.OwnerUserID,
		EbookID:     &ebookID,
		Title:       title,
		Status:      domain.StatusPending,
		AudioMethod: method,
	}
	if _, err := s.collectionRepo.Create(dbc, []*domain.AudioCollection{col}); err != nil {
		return nil, nil, err
	}

	job, err := enqueueJob(dbc, s.jobRepo, eb.OwnerUserID, domain.JobTypeAudioGenerate, domain.EntityAudioCollection, col.ID, map[string]any{
		"collection_id": col.ID.String(),
		"ebook_id":      eb.ID.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("Audio generation enqueued", "collection_id", col.ID, "ebook_id", eb.ID, "method", method, "job_id", job.ID)
	return col, job, nil
}

func (s *audioService) Resume(dbc dbctx.Context, collectionID uuid.UUID) (*domain.JobRun, error) {
	col, err := s.collectionRepo.GetByID(dbc, collectionID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("%w: audio collection %s", platformerrors.ErrNotFound, collectionID)
	}
	if col.Status == domain.StatusProcessing {
		return nil, fmt.Errorf("%w: audio collection %s", platformerrors.ErrAlreadyRunning, collectionID)
	}
	payload := map[string]any{"collection_id": col.ID.String()}
	if col.EbookID != nil {
		payload["ebook_id"] = col.EbookID.String()
	}
	job, err := enqueueJob(dbc, s.jobRepo, col.OwnerUserID, domain.JobTypeAudioGenerate, domain.EntityAudioCollection, col.ID, payload)
	if err != nil {
		return nil, err
	}
	// Resuming a failed run counts as a retry.
	if col.Status == domain.StatusError {
		tracker := progress.NewTracker(progress.AudioCollectionTarget(s.collectionRepo, col.ID), s.log)
		if err := tracker.IncrementRetryCount(dbc); err != nil {
			s.log.Warn("Retry count not recorded", "collection_id", col.ID, "error", err)
		}
	}
	return job, nil
}

func (s *audioService) Status(dbc dbctx.Context, collectionID uuid.UUID) (*domain.PollStatus, error) {
	col, err := s.collectionRepo.GetByID(dbc, collectionID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("%w: audio collection %s", platformerrors.ErrNotFound, collectionID)
	}
	return &domain.PollStatus{
		Status:           col.Status,
		Progress:         col.Progress,
		ProcessingStatus: col.ProcessingStatus,
		RetryCount:       col.RetryCount,
		Error:            col.Error,
	}, nil
}

func (s *audioService) Get(dbc dbctx.Context, collectionID uuid.UUID) (*domain.AudioCollection, []*domain.Audio, error) {
	col, err := s.collectionRepo.GetByID(dbc, collectionID)
	if err != nil {
		return nil, nil, err
	}
	if col == nil {
		return nil, nil, fmt.Errorf("%w: audio collection %s", platformerrors.ErrNotFound, collectionID)
	}
	audios, err := s.audioRepo.GetByCollectionID(dbc, collectionID)
	if err != nil {
		return nil, nil, err
	}
	return col, audios, nil
}
