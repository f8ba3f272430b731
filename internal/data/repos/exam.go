package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type ExamRepo interface {
	Create(dbc dbctx.Context, exams []*domain.Exam) ([]*domain.Exam, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Exam, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	MarkStalled(dbc dbctx.Context, cutoff time.Time, message string) (int64, error)
}

type examRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExamRepo(db *gorm.DB, baseLog *logger.Logger) ExamRepo {
	return &examRepo{db: db, log: baseLog.With("repo", "ExamRepo")}
}

func (r *examRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *examRepo) Create(dbc dbctx.Context, exams []*domain.Exam) ([]*domain.Exam, error) {
	if len(exams) == 0 {
		return []*domain.Exam{}, nil
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&exams).Error; err != nil {
		return nil, err
	}
	return exams, nil
}

func (r *examRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Exam, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ex domain.Exam
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&ex).Error
	if err != nil {
		return nil, err
	}
	if ex.ID == uuid.Nil {
		return nil, nil
	}
	return &ex, nil
}

func (r *examRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Exam{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *examRepo) MarkStalled(dbc dbctx.Context, cutoff time.Time, message string) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Exam{}).
		Where("status = ? AND updated_at < ?", domain.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":            domain.StatusError,
			"processing_status": message,
			"error":             message,
			"updated_at":        time.Now(),
		})
	return res.RowsAffected, res.Error
}
