package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobRun is the generic durable work item behind every pipeline run. The
// domain records (Ebook, AudioCollection, Exam) mirror user-facing status;
// JobRun carries the scheduling state: claims, heartbeats, attempts and the
// persisted orchestrator snapshot in Result.
type JobRun struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	JobType     string     `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType  string     `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID    *uuid.UUID `gorm:"type:uuid;column:entity_id;index" json:"entity_id,omitempty"`

	Status   string `gorm:"column:status;not null;index" json:"status"`
	Stage    string `gorm:"column:stage;not null" json:"stage"`
	Progress int    `gorm:"column:progress;not null;default:0" json:"progress"`
	Message  string `gorm:"column:message" json:"message,omitempty"`
	Attempts int    `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error    string `gorm:"column:error" json:"error,omitempty"`

	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result  datatypes.JSON `gorm:"column:result" json:"result"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }

// Job types dispatched by the worker.
const (
	JobTypeEbookExtract  = "ebook_extract"
	JobTypeAudioGenerate = "audio_generate"
	JobTypeExamGenerate  = "exam_generate"
)

// Entity types recorded on JobRun rows and published on the progress bus.
const (
	EntityEbook           = "ebook"
	EntityAudioCollection = "audio_collection"
	EntityExam            = "exam"
)
