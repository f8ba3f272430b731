package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AudioCollection groups the audio artifacts generated for one ebook run.
// Progress is monotonically non-decreasing while Status is "processing" and
// reaches exactly 100 on "complete". PlaytimeSec equals the sum of contained
// Audio durations once complete.
type AudioCollection struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	EbookID     *uuid.UUID `gorm:"type:uuid;index" json:"ebook_id,omitempty"`
	Title       string     `gorm:"column:title" json:"title"`

	Status           string  `gorm:"column:status;not null;index" json:"status"`
	Progress         int     `gorm:"column:progress;not null;default:0" json:"progress"`
	ProcessingStatus string  `gorm:"column:processing_status" json:"processing_status"`
	RetryCount       int     `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	AudioMethod      string  `gorm:"column:audio_method;not null" json:"audio_method"`
	PlaytimeSec      float64 `gorm:"column:playtime_sec;not null;default:0" json:"playtime_sec"`
	Error            string  `gorm:"column:error" json:"error,omitempty"`

	ProcessingDetails datatypes.JSON `gorm:"column:processing_details" json:"processing_details"`

	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`

	Audios []Audio `gorm:"foreignKey:CollectionID" json:"audios,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AudioCollection) TableName() string { return "audio_collection" }

// Audio is a single generated artifact, one per processed section. Immutable
// after creation except for membership in its collection.
type Audio struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID uuid.UUID `gorm:"type:uuid;not null;index" json:"collection_id"`
	Index        int       `gorm:"column:idx;not null;index" json:"index"`
	Title        string    `gorm:"column:title;not null" json:"title"`
	URL          string    `gorm:"column:url;not null" json:"url"`
	DurationSec  float64   `gorm:"column:duration_sec;not null;default:0" json:"duration_sec"`
	SectionType  string    `gorm:"column:section_type" json:"section_type"`

	// Per-segment breakdown: [{voice, duration_sec, text}].
	Segments datatypes.JSON `gorm:"column:segments" json:"segments,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Audio) TableName() string { return "audio" }

// AudioSegmentDetail is one element of Audio.Segments.
type AudioSegmentDetail struct {
	Voice       string  `json:"voice"`
	DurationSec float64 `json:"duration_sec"`
	Text        string  `json:"text"`
}
