package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/clients/gcp"
	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/ingestion/sections"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	platformerrors "github.com/yungbote/fablecast-backend/internal/platform/errors"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
	"github.com/yungbote/fablecast-backend/internal/progress"
)

var supportedUploadExts = map[string]struct{}{
	".pdf": {}, ".txt": {}, ".html": {}, ".htm": {}, ".csv": {},
	".docx": {}, ".png": {}, ".jpg": {}, ".jpeg": {},
}

type CreateEbookInput struct {
	OwnerUserID uuid.UUID
	Title       string
	FileExt     string
	File        io.Reader
}

type EbookService interface {
	Create(dbc dbctx.Context, in CreateEbookInput) (*domain.Ebook, *domain.JobRun, error)
	Resume(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error)
	Status(dbc dbctx.Context, id uuid.UUID) (*domain.PollStatus, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*domain.Ebook, []sections.SectionGroup, error)
}

type ebookService struct {
	log       *logger.Logger
	ebookRepo repos.EbookRepo
	jobRepo   repos.JobRunRepo
	bucket    gcp.BucketService
}

func NewEbookService(ebookRepo repos.EbookRepo, jobRepo repos.JobRunRepo, bucket gcp.BucketService, log *logger.Logger) (EbookService, error) {
	if ebookRepo == nil || jobRepo == nil || bucket == nil || log == nil {
		return nil, fmt.Errorf("ebook service dependencies missing")
	}
	return &ebookService{
		log:       log.With("service", "EbookService"),
		ebookRepo: ebookRepo,
		jobRepo:   jobRepo,
		bucket:    bucket,
	}, nil
}

func (s *ebookService) Create(dbc dbctx.Context, in CreateEbookInput) (*domain.Ebook, *domain.JobRun, error) {
	ext := strings.ToLower(strings.TrimSpace(in.FileExt))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if _, ok := supportedUploadExts[ext]; !ok {
		return nil, nil, fmt.Errorf("%w: unsupported file format %q", platformerrors.ErrInvalidArgument, in.FileExt)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, nil, fmt.Errorf("%w: title required", platformerrors.ErrInvalidArgument)
	}
	if in.File == nil {
		return nil, nil, fmt.Errorf("%w: file required", platformerrors.ErrInvalidArgument)
	}

	id := uuid.New()
	key := fmt.Sprintf("uploads/%s%s", id, ext)
	if err := s.bucket.UploadFile(dbc.Ctx, key, in.File); err != nil {
		return nil, nil, fmt.Errorf("upload source file: %w", err)
	}

	eb := &domain.Ebook{
		ID:          id,
		OwnerUserID: in.OwnerUserID,
		Title:       strings.TrimSpace(in.Title),
		StorageKey:  key,
		FileExt:     ext,
		Status:      domain.StatusPending,
	}
	if _, err := s.ebookRepo.Create(dbc, []*domain.Ebook{eb}); err != nil {
		return nil, nil, err
	}

	job, err := enqueueJob(dbc, s.jobRepo, in.OwnerUserID, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID, map[string]any{
		"ebook_id": eb.ID.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("Ebook created and extraction enqueued", "ebook_id", eb.ID, "job_id", job.ID, "ext", ext)
	return eb, job, nil
}

func (s *ebookService) Resume(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	eb, err := s.ebookRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if eb == nil {
		return nil, fmt.Errorf("%w: ebook %s", platformerrors.ErrNotFound, id)
	}
	if eb.Status == domain.StatusProcessing {
		return nil, fmt.Errorf("%w: ebook %s", platformerrors.ErrAlreadyRunning, id)
	}
	job, err := enqueueJob(dbc, s.jobRepo, eb.OwnerUserID, domain.JobTypeEbookExtract, domain.EntityEbook, eb.ID, map[string]any{
		"ebook_id": eb.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	// Resuming a failed extraction counts as a retry.
	if eb.Status == domain.StatusError {
		tracker := progress.NewTracker(progress.EbookTarget(s.ebookRepo, eb.ID), s.log)
		if err := tracker.IncrementRetryCount(dbc); err != nil {
			s.log.Warn("Retry count not recorded", "ebook_id", eb.ID, "error", err)
		}
	}
	return job, nil
}

func (s *ebookService) Status(dbc dbctx.Context, id uuid.UUID) (*domain.PollStatus, error) {
	eb, err := s.ebookRepo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if eb == nil {
		return nil, fmt.Errorf("%w: ebook %s", platformerrors.ErrNotFound, id)
	}
	pct := 0
	if eb.TotalPages > 0 {
		pct = eb.ProcessedPages * 100 / eb.TotalPages
	}
	if eb.Status == domain.StatusComplete {
		pct = 100
	}
	return &domain.PollStatus{
		Status:           eb.Status,
		Progress:         pct,
		ProcessingStatus: eb.ProcessingStatus,
		RetryCount:       retryCountFromDetails(eb.ProcessingDetails),
		Error:            eb.Error,
	}, nil
}

// Get returns the record together with its chapters, grouped positionally
// from the stored content titles.
func (s *ebookService) Get(dbc dbctx.Context, id uuid.UUID) (*domain.Ebook, []sections.SectionGroup, error) {
	eb, err := s.ebookRepo.GetByID(dbc, id)
	if err != nil {
		return nil, nil, err
	}
	if eb == nil {
		return nil, nil, fmt.Errorf("%w: ebook %s", platformerrors.ErrNotFound, id)
	}
	rows, err := s.ebookRepo.GetContentTitles(dbc, id)
	if err != nil {
		return nil, nil, err
	}
	titles := make([]domain.ContentTitle, 0, len(rows))
	for _, r := range rows {
		titles = append(titles, *r)
	}
	return eb, sections.Organize(titles), nil
}
