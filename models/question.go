package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeText         QuestionType = "TEXT"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeText
}

var (
	ErrEmptyAnswer     = errors.New("answer is empty")
	ErrUnknownType     = errors.New("unsupported question type")
	ErrOptionsRequired = errors.New("at least 2 options are required")
)

type Question struct {
	ID        string                      `json:"id" gorm:"primaryKey;size:36"`
	QuizID    string                      `json:"quiz_id" gorm:"not null;size:36;uniqueIndex:idx_questions_quiz_order"`
	Text      string                      `json:"text" gorm:"type:text;not null"`
	Type      QuestionType                `json:"type" gorm:"not null;size:32"`
	Options   datatypes.JSONSlice[string] `json:"options" gorm:"not null"`
	Order     int                         `json:"order" gorm:"not null;uniqueIndex:idx_questions_quiz_order"`
	CreatedAt time.Time                   `json:"created_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Options == nil {
		q.Options = datatypes.JSONSlice[string]{}
	}
	return nil
}

// Kind returns the typed view of the question. Options stored on a TEXT
// question are ignored.
func (q *Question) Kind() (QuestionKind, error) {
	switch q.Type {
	case QuestionTypeSingleChoice:
		return SingleChoice{Options: q.Options}, nil
	case QuestionTypeText:
		return Text{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, q.Type)
}

// QuestionKind is implemented by SingleChoice and Text.
type QuestionKind interface {
	Type() QuestionType
	// Choices is the option list to persist for this kind.
	Choices() []string
	// Check validates a submitted answer value against the question.
	Check(value string) error
}

type SingleChoice struct {
	Options []string
}

// NewSingleChoice trims the options and drops blank and repeated ones. At
// least two distinct options must remain.
func NewSingleChoice(options []string) (SingleChoice, error) {
	kept := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" || seen[opt] {
			continue
		}
		seen[opt] = true
		kept = append(kept, opt)
	}
	if len(kept) < 2 {
		return SingleChoice{}, ErrOptionsRequired
	}
	return SingleChoice{Options: kept}, nil
}

func (SingleChoice) Type() QuestionType { return QuestionTypeSingleChoice }

func (s SingleChoice) Choices() []string { return s.Options }

func (s SingleChoice) Check(value string) error {
	for _, opt := range s.Options {
		if opt == value {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of the options", value)
}

type Text struct{}

func (Text) Type() QuestionType { return QuestionTypeText }

func (Text) Choices() []string { return []string{} }

func (Text) Check(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyAnswer
	}
	return nil
}
