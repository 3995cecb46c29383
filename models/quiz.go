package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Quiz is immutable once created. Questions are written in the same
// transaction as the quiz row and never edited afterwards.
type Quiz struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description"`
	CreatorID   string    `json:"creator_id" gorm:"not null;index;size:36"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`

	// Relationships
	Creator   *User      `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
	Responses []Response `json:"responses,omitempty" gorm:"foreignKey:QuizID"`
}

func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// Question returns the question with the given id, or nil.
func (q *Quiz) Question(id string) *Question {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i]
		}
	}
	return nil
}
