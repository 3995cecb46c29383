package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"quickquiz/logger"
	"quickquiz/metrics"
	"quickquiz/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const minQuestions = 2

type QuizService struct {
	db      *gorm.DB
	cache   QuizCache
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewQuizService wires the quiz workflow. cache may be nil.
func NewQuizService(db *gorm.DB, cache QuizCache, m *metrics.Metrics, log *logger.Logger) *QuizService {
	return &QuizService{
		db:      db,
		cache:   cache,
		metrics: m,
		log:     log,
	}
}

type CreateQuizRequest struct {
	Title       string                  `json:"title" binding:"max=200"`
	Description string                  `json:"description" binding:"max=2000"`
	Questions   []CreateQuestionRequest `json:"questions" binding:"max=100,dive"`
}

type CreateQuestionRequest struct {
	Text    string              `json:"text" binding:"max=1000"`
	Type    models.QuestionType `json:"type" binding:"required,question_type"`
	Options []string            `json:"options" binding:"max=20"`
	Order   int                 `json:"order" binding:"min=0"`
}

// QuizSummary is a dashboard row.
type QuizSummary struct {
	models.Quiz
	ResponseCount int64 `json:"response_count"`
}

// buildQuiz validates a draft and returns the rows to persist. It stops at
// the first problem found; question numbers in messages are 1-based
// positions in the submitted list.
func buildQuiz(creatorID string, req *CreateQuizRequest) (*models.Quiz, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title", "Quiz title is required")
	}
	if len(req.Questions) < minQuestions {
		return nil, invalid("questions", "At least %d questions are required", minQuestions)
	}

	quiz := &models.Quiz{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		CreatorID:   creatorID,
		Questions:   make([]models.Question, 0, len(req.Questions)),
	}

	seenOrder := make(map[int]bool, len(req.Questions))
	for i, q := range req.Questions {
		n := i + 1
		text := strings.TrimSpace(q.Text)
		if text == "" {
			return nil, invalid("questions", "Question %d text is required", n)
		}
		if q.Order < 0 || seenOrder[q.Order] {
			return nil, invalid("questions", "Question %d has a duplicate or negative order", n)
		}
		seenOrder[q.Order] = true

		var kind models.QuestionKind
		switch q.Type {
		case models.QuestionTypeSingleChoice:
			choice, err := models.NewSingleChoice(q.Options)
			if err != nil {
				return nil, invalid("questions", "Question %d must have at least 2 options", n)
			}
			kind = choice
		case models.QuestionTypeText:
			kind = models.Text{}
		default:
			return nil, invalid("questions", "Question %d has an unsupported type %q", n, q.Type)
		}

		quiz.Questions = append(quiz.Questions, models.Question{
			Text:    text,
			Type:    kind.Type(),
			Options: datatypes.JSONSlice[string](kind.Choices()),
			Order:   q.Order,
		})
	}

	return quiz, nil
}

func orderQuestions(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}})
}

func sortQuestions(questions []models.Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
}

// CreateQuiz validates the draft and stores the quiz with all of its
// questions in one transaction.
func (s *QuizService) CreateQuiz(ctx context.Context, id Identity, req *CreateQuizRequest) (*models.Quiz, error) {
	if !id.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	quiz, err := buildQuiz(id.UserID, req)
	if err != nil {
		return nil, err
	}
	questions := quiz.Questions
	quiz.Questions = nil

	// Start transaction
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Create(quiz).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	for i := range questions {
		questions[i].QuizID = quiz.ID
	}
	if err := tx.Create(&questions).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create questions: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit quiz: %w", err)
	}

	sortQuestions(questions)
	quiz.Questions = questions

	s.metrics.QuizzesCreated.Inc()
	s.log.WithUserID(id.UserID).WithField("quiz_id", quiz.ID).
		WithField("questions", len(questions)).Info("quiz created")

	return quiz, nil
}

// GetQuiz returns the quiz with its questions in display order and the
// creator's name. Any caller may read any quiz.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (*models.Quiz, error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return nil, ErrNotFound
	}

	if quiz := s.cachedQuiz(ctx, quizID); quiz != nil {
		return quiz, nil
	}

	var quiz models.Quiz
	err := s.db.WithContext(ctx).
		Preload("Creator", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		}).
		Preload("Questions", orderQuestions).
		Where("id = ?", quizID).
		First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, &quiz); err != nil {
			s.log.WithQuizID(quizID).WithError(err).Warn("quiz cache write failed")
		}
	}

	return &quiz, nil
}

func (s *QuizService) cachedQuiz(ctx context.Context, quizID string) *models.Quiz {
	if s.cache == nil {
		return nil
	}

	quiz, err := s.cache.Get(ctx, quizID)
	switch {
	case err != nil:
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.WithQuizID(quizID).WithError(err).Warn("quiz cache read failed")
		return nil
	case quiz == nil:
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}

	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return quiz
}

// GetOwnedQuiz loads a quiz and checks that the caller created it.
func (s *QuizService) GetOwnedQuiz(ctx context.Context, id Identity, quizID string) (*models.Quiz, error) {
	if !id.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	quiz, err := s.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if !id.Owns(quiz.CreatorID) {
		return nil, ErrForbidden
	}
	return quiz, nil
}

// GetUserQuizzes lists the caller's quizzes newest first with response counts.
func (s *QuizService) GetUserQuizzes(ctx context.Context, id Identity) ([]QuizSummary, error) {
	if !id.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	var quizzes []models.Quiz
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", id.UserID).
		Order("created_at DESC").
		Find(&quizzes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	summaries := make([]QuizSummary, 0, len(quizzes))
	if len(quizzes) == 0 {
		return summaries, nil
	}

	ids := make([]string, len(quizzes))
	for i, q := range quizzes {
		ids[i] = q.ID
	}

	var counts []struct {
		QuizID string
		Total  int64
	}
	err = s.db.WithContext(ctx).
		Model(&models.Response{}).
		Select("quiz_id, COUNT(*) AS total").
		Where("quiz_id IN ?", ids).
		Group("quiz_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count responses: %w", err)
	}

	byQuiz := make(map[string]int64, len(counts))
	for _, c := range counts {
		byQuiz[c.QuizID] = c.Total
	}

	for _, q := range quizzes {
		summaries = append(summaries, QuizSummary{Quiz: q, ResponseCount: byQuiz[q.ID]})
	}
	return summaries, nil
}
