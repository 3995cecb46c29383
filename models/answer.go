package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Answer struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	ResponseID string `json:"response_id" gorm:"not null;index;size:36"`
	QuestionID string `json:"question_id" gorm:"not null;index;size:36"`
	Value      string `json:"value" gorm:"type:text;not null"`

	// Relationships
	Question *Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
