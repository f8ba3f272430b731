package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Exam holds generated quiz questions plus the source text chunks they were
// produced from. Questions is append-only during generation; the resume chunk
// index is derived as floor(len(questions)/questionsPerChunk)+1, never stored.
type Exam struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	EbookID     uuid.UUID `gorm:"type:uuid;not null;index" json:"ebook_id"`
	Title       string    `gorm:"column:title" json:"title"`

	Questions         datatypes.JSON `gorm:"column:questions" json:"questions"`
	TextChunks        datatypes.JSON `gorm:"column:text_chunks" json:"text_chunks"`
	QuestionsPerChunk int            `gorm:"column:questions_per_chunk;not null;default:5" json:"questions_per_chunk"`

	Status           string `gorm:"column:status;not null;index" json:"status"`
	Progress         int    `gorm:"column:progress;not null;default:0" json:"progress"`
	ProcessingStatus string `gorm:"column:processing_status" json:"processing_status"`
	RetryCount       int    `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	Error            string `gorm:"column:error" json:"error,omitempty"`

	ProcessingDetails datatypes.JSON `gorm:"column:processing_details" json:"processing_details"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Exam) TableName() string { return "exam" }

// Question is one element of Exam.Questions.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}
