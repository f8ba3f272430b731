package services

import (
	"encoding/json"
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

const defaultQuestionsPerChunk = 5

type CreateExamInput struct {
	EbookID           uuid.UUID
	Title             string
	QuestionsPerChunk int
}

type ExamService interface {
	Create(dbc dbctx.Context, in CreateExamInput) (*domain.Exam, *domain.JobRun, error)
	Resume(dbc dbctx.Context, examID uuid.UUID) (*domain.JobRun, error)
	Status(dbc dbctx.Context, examID uuid.UUID) (*domain.PollStatus, error)
	Get(dbc dbctx.Context, examID uuid.UUID) (*domain.Exam, []domain.Question, error)
}

type examService struct {
	log       *logger.Logger
	ebookRepo repos.EbookRepo
	examRepo  repos.ExamRepo
	jobRepo   repos.JobRunRepo
}

func NewExamService(ebookRepo repos.EbookRepo, examRepo repos.ExamRepo, jobRepo repos.JobRunRepo, log *logger.Logger) (ExamService, error) {
	if ebookRepo == nil || examRepo == nil || jobRepo == nil || log == nil {
		return nil, fmt.Errorf("exam service dependencies missing")
	}
	return &examService{
		log:       log.With("service", "ExamService"),
		ebookRepo: ebookRepo,
		examRepo:  examRepo,
		jobRepo:   jobRepo,
	}, nil
}

func (s *examService) Create(dbc dbctx.Context, in CreateExamInput) (*domain.Exam, *domain.JobRun, error) {
	eb, err := s.ebookRepo.GetByID(dbc, in.EbookID)
	if err != nil {
		return nil, nil, err
	}
	if eb == nil {
		return nil, nil, fmt.Errorf("%w: ebook %s", platformerrors.ErrNotFound, in.EbookID)
	}

	perChunk := in.QuestionsPerChunk
	if perChunk <= 0 {
		perChunk = defaultQuestionsPerChunk
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = eb.Title + " quiz"
	}

	ex := &domain.Exam{
		ID:                uuid.New(),
		OwnerUserID:       eb.OwnerUserID,
		EbookID:           eb.ID,
		Title:             title,
		QuestionsPerChunk: perChunk,
		Status:            domain.StatusPending,
	}
	if _, err := s.examRepo.Create(dbc, []*domain.Exam{ex}); err != nil {
		return nil, nil, err
	}

	job, err := enqueueJob(dbc, s.jobRepo, eb.OwnerUserID, domain.JobTypeExamGenerate, domain.EntityExam, ex.ID, map[string]any{
		"exam_id":  ex.ID.String(),
		"ebook_id": eb.ID.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("Exam generation enqueued", "exam_id", ex.ID, "ebook_id", eb.ID, "job_id", job.ID)
	return ex, job, nil
}

func (s *examService) Resume(dbc dbctx.Context, examID uuid.UUID) (*domain.JobRun, error) {
	ex, err := s.examRepo.GetByID(dbc, examID)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, fmt.Errorf("%w: exam %s", platformerrors.ErrNotFound, examID)
	}
	if ex.Status == domain.StatusProcessing {
		return nil, fmt.Errorf("%w: exam %s", platformerrors.ErrAlreadyRunning, examID)
	}
	job, err := enqueueJob(dbc, s.jobRepo, ex.OwnerUserID, domain.JobTypeExamGenerate, domain.EntityExam, ex.ID, map[string]any{
		"exam_id":  ex.ID.String(),
		"ebook_id": ex.EbookID.String(),
	})
	if err != nil {
		return nil, err
	}
	// Resuming a failed run counts as a retry.
	if ex.Status == domain.StatusError {
		tracker := progress.NewTracker(progress.ExamTarget(s.examRepo, ex.ID), s.log)
		if err := tracker.IncrementRetryCount(dbc); err != nil {
			s.log.Warn("Retry count not recorded", "exam_id", ex.ID, "error", err)
		}
	}
	return job, nil
}

func (s *examService) Status(dbc dbctx.Context, examID uuid.UUID) (*domain.PollStatus, error) {
	ex, err := s.examRepo.GetByID(dbc, examID)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, fmt.Errorf("%w: exam %s", platformerrors.ErrNotFound, examID)
	}
	return &domain.PollStatus{
		Status:           ex.Status,
		Progress:         ex.Progress,
		ProcessingStatus: ex.ProcessingStatus,
		RetryCount:       ex.RetryCount,
		Error:            ex.Error,
	}, nil
}

func (s *examService) Get(dbc dbctx.Context, examID uuid.UUID) (*domain.Exam, []domain.Question, error) {
	ex, err := s.examRepo.GetByID(dbc, examID)
	if err != nil {
		return nil, nil, err
	}
	if ex == nil {
		return nil, nil, fmt.Errorf("%w: exam %s", platformerrors.ErrNotFound, examID)
	}
	var questions []domain.Question
	if len(ex.Questions) > 0 {
		if err := json.Unmarshal(ex.Questions, &questions); err != nil {
			return nil, nil, fmt.Errorf("decode exam questions: %w", err)
		}
	}
	return ex, questions, nil
}
