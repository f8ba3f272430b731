package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ebook is the root record for an uploaded document and its extracted
// structure. Sections and ContentTitles are owned rows ordered by Index;
// head/sub grouping is positional and derived at read time, never stored.
type Ebook struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	StorageKey  string    `gorm:"column:storage_key;not null" json:"storage_key"`
	FileExt     string    `gorm:"column:file_ext;not null" json:"file_ext"`

	Status           string `gorm:"column:status;not null;index" json:"status"`
	ProcessingStatus string `gorm:"column:processing_status" json:"processing_status"`
	TotalPages       int    `gorm:"column:total_pages;not null;default:0" json:"total_pages"`
	ProcessedPages   int    `gorm:"column:processed_pages;not null;default:0" json:"processed_pages"`
	Error            string `gorm:"column:error" json:"error,omitempty"`

	ProcessingDetails datatypes.JSON `gorm:"column:processing_details" json:"processing_details"`

	Sections      []Section      `gorm:"foreignKey:EbookID" json:"sections,omitempty"`
	ContentTitles []ContentTitle `gorm:"foreignKey:EbookID" json:"content_titles,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Ebook) TableName() string { return "ebook" }

// ProcessingDetails is the JSON payload stored on Ebook.ProcessingDetails.
// Log is capped at the most recent 100 entries by the progress tracker.
type ProcessingDetails struct {
	CurrentStep               string     `json:"current_step,omitempty"`
	StartTime                 *time.Time `json:"start_time,omitempty"`
	LastUpdated               *time.Time `json:"last_updated,omitempty"`
	EstimatedTimeRemainingSec int        `json:"estimated_time_remaining_sec,omitempty"`
	RetryCount                int        `json:"retry_count,omitempty"`
	FailedPages               []int      `json:"failed_pages,omitempty"`
	Log                       []LogEntry `json:"log,omitempty"`
}

type LogEntry struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Section is a contiguous span of extracted content. Type is "head" or "sub";
// a sub belongs to the nearest preceding head in Index order.
type Section struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EbookID              uuid.UUID `gorm:"type:uuid;not null;index" json:"ebook_id"`
	Index                int       `gorm:"column:idx;not null;index" json:"index"`
	Title                string    `gorm:"column:title;not null" json:"title"`
	Content              string    `gorm:"column:content" json:"content"`
	Type                 string    `gorm:"column:type;not null" json:"type"`
	EstimatedDurationSec float64   `gorm:"column:estimated_duration_sec" json:"estimated_duration_sec"`
	Complete             bool      `gorm:"column:complete;not null;default:false" json:"complete"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Section) TableName() string { return "ebook_section" }

// ContentTitle is a table-of-contents entry discovered during extraction.
type ContentTitle struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EbookID uuid.UUID `gorm:"type:uuid;not null;index" json:"ebook_id"`
	Index   int       `gorm:"column:idx;not null;index" json:"index"`
	Title   string    `gorm:"column:title;not null" json:"title"`
	Type    string    `gorm:"column:type;not null" json:"type"`
	Page    int       `gorm:"column:page;not null;default:0" json:"page"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ContentTitle) TableName() string { return "ebook_content_title" }
