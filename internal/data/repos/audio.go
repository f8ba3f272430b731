package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type AudioCollectionRepo interface {
	Create(dbc dbctx.Context, cols []*domain.AudioCollection) ([]*domain.AudioCollection, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AudioCollection, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AddPlaytime(dbc dbctx.Context, id uuid.UUID, deltaSec float64) error
	MarkStalled(dbc dbctx.Context, cutoff time.Time, message string) (int64, error)
}

type AudioRepo interface {
	Create(dbc dbctx.Context, audios []*domain.Audio) ([]*domain.Audio, error)
	GetByCollectionID(dbc dbctx.Context, collectionID uuid.UUID) ([]*domain.Audio, error)
}

type audioCollectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAudioCollectionRepo(db *gorm.DB, baseLog *logger.Logger) AudioCollectionRepo {
	return &audioCollectionRepo{db: db, log: baseLog.With("repo", "AudioCollectionRepo")}
}

func (r *audioCollectionRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *audioCollectionRepo) Create(dbc dbctx.Context, cols []*domain.AudioCollection) ([]*domain.AudioCollection, error) {
	if len(cols) == 0 {
		return []*domain.AudioCollection{}, nil
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&cols).Error; err != nil {
		return nil, err
	}
	return cols, nil
}

func (r *audioCollectionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AudioCollection, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var col domain.AudioCollection
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&col).Error
	if err != nil {
		return nil, err
	}
	if col.ID == uuid.Nil {
		return nil, nil
	}
	return &col, nil
}

func (r *audioCollectionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&domain.AudioCollection{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *audioCollectionRepo) AddPlaytime(dbc dbctx.Context, id uuid.UUID, deltaSec float64) error {
	if id == uuid.Nil || deltaSec == 0 {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.AudioCollection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"playtime_sec": gorm.Expr("playtime_sec + ?", deltaSec),
			"updated_at":   time.Now(),
		}).Error
}

func (r *audioCollectionRepo) MarkStalled(dbc dbctx.Context, cutoff time.Time, message string) (int64, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.AudioCollection{}).
		Where("status = ? AND updated_at < ?", domain.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":            domain.StatusError,
			"processing_status": message,
			"error":             message,
			"updated_at":        time.Now(),
		})
	return res.RowsAffected, res.Error
}

type audioRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAudioRepo(db *gorm.DB, baseLog *logger.Logger) AudioRepo {
	return &audioRepo{db: db, log: baseLog.With("repo", "AudioRepo")}
}

func (r *audioRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *audioRepo) Create(dbc dbctx.Context, audios []*domain.Audio) ([]*domain.Audio, error) {
	if len(audios) == 0 {
		return []*domain.Audio{}, nil
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&audios).Error; err != nil {
		return nil, err
	}
	return audios, nil
}

func (r *audioRepo) GetByCollectionID(dbc dbctx.Context, collectionID uuid.UUID) ([]*domain.Audio, error) {
	var out []*domain.Audio
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("collection_id = ?", collectionID).
		Order("idx ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
