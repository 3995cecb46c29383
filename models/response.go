package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Response is one respondent's submission. It is created together with all
// of its answers and has no update path.
type Response struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	QuizID    string    `json:"quiz_id" gorm:"not null;index;size:36"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	// Relationships
	Answers []Answer `json:"answers" gorm:"foreignKey:ResponseID"`
}

func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
