package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type EbookRepo interface {
	Create(dbc dbctx.Context, ebooks []*domain.Ebook) ([]*domain.Ebook, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Ebook, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AppendSections(dbc dbctx.Context, sections []*domain.Section) error
	AppendContentTitles(dbc dbctx.Context, titles []*domain.ContentTitle) error
	GetSections(dbc dbctx.Context, ebookID uuid.UUID) ([]*domain.Section, error)
	GetContentTitles(dbc dbctx.Context, ebookID uuid.UUID) ([]*domain.ContentTitle, error)
	MarkStalled(dbc dbctx.Context, cutoff time.Time, message string) (int64, error)
}

type ebookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEbookRepo(db *gorm.DB, baseLog *logger.Logger) EbookRepo {
	return &ebookRepo{db: db, log: baseLog.With("repo", "EbookRepo")}
}

func (r *ebookRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *ebookRepo) Create(dbc dbctx.Context, ebooks []*domain.Ebook) ([]*domain.Ebook, error) {
	if len(ebooks) == 0 {
		return []*domain.Ebook{}, nil
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&ebooks).Error; err != nil {
		return nil, err
	}
	return ebooks, nil
}

func (r *ebookRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Ebook, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var eb domain.Ebook
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&eb).Error
	if err != nil {
		return nil, err
	}
	if eb.ID == uuid.Nil {
		return nil, nil
	}
	return &eb, nil
}

func (r *ebookRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&domain.Ebook{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ebookRepo) AppendSections(dbc dbctx.Context, sections []*domain.Section) error {
	if len(sections) == 0 {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).Create(&sections).Error
}

func (r *ebookRepo) AppendContentTitles(dbc dbctx.Context, titles []*domain.ContentTitle) error {
	if len(titles) == 0 {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).Create(&titles).Error
}

func (r *ebookRepo) GetSections(dbc dbctx.Context, ebookID uuid.UUID) ([]*domain.Section, error) {
	var out []*domain.Section
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("ebook_id = ?", ebookID).
		Order("idx ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ebookRepo) GetContentTitles(dbc dbctx.Context, ebookID uuid.UUID) ([]*domain.ContentTitle, error) {
	var out []*domain.ContentTitle
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("ebook_id = ?", ebookID).
		Order("idx ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ebookRepo) MarkStalled(dbc dbctx.Context, cutoff time.Time, message string) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Ebook{}).
		Where("status = ? AND updated_at < ?", domain.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":            domain.StatusError,
			"processing_status": message,
			"error":             message,
			"updated_at":        time.Now(),
		})
	return res.RowsAffected, res.Error
}
