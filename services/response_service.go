package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"quickquiz/logger"
	"quickquiz/metrics"
	"quickquiz/models"

	"gorm.io/gorm"
)

// ResponseNotifier is told about every committed response.
type ResponseNotifier interface {
	ResponseSubmitted(quizID string, response *models.Response)
}

type ResponseService struct {
	db       *gorm.DB
	quizzes  *QuizService
	notifier ResponseNotifier
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewResponseService wires response collection. notifier may be nil.
func NewResponseService(db *gorm.DB, quizzes *QuizService, notifier ResponseNotifier, m *metrics.Metrics, log *logger.Logger) *ResponseService {
	return &ResponseService{
		db:       db,
		quizzes:  quizzes,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
}

type SubmitResponseRequest struct {
	Answers map[string]string `json:"answers"`
}

// QuizResponses is the owner's view of everything collected for a quiz.
type QuizResponses struct {
	Quiz      *models.Quiz      `json:"quiz"`
	Responses []models.Response `json:"responses"`
}

// checkAnswers requires exactly one non-blank answer per question of the
// quiz, each valid for its question kind, and no answers for questions that
// are not part of the quiz.
func checkAnswers(quiz *models.Quiz, answers map[string]string) error {
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		n := i + 1

		value, ok := answers[q.ID]
		if !ok || strings.TrimSpace(value) == "" {
			return invalid("answers", "Question %d requires an answer", n)
		}

		kind, err := q.Kind()
		if err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		if err := kind.Check(value); err != nil {
			return invalid("answers", "Question %d: %v", n, err)
		}
	}

	var unknown []string
	for questionID := range answers {
		if quiz.Question(questionID) == nil {
			unknown = append(unknown, questionID)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return invalid("answers", "Answer references unknown question %q", unknown[0])
	}

	return nil
}

// SubmitResponse stores one response with an answer per question in a single
// transaction. Repeated submissions create separate responses. A missing quiz
// is reported before anything about the answers.
func (s *ResponseService) SubmitResponse(ctx context.Context, quizID string, req *SubmitResponseRequest) (*models.Response, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return s.SubmitToQuiz(ctx, quiz, req)
}

// SubmitToQuiz is SubmitResponse for a quiz the caller already loaded.
func (s *ResponseService) SubmitToQuiz(ctx context.Context, quiz *models.Quiz, req *SubmitResponseRequest) (*models.Response, error) {
	if req == nil || req.Answers == nil {
		return nil, invalid("answers", "Answers is required")
	}
	if err := checkAnswers(quiz, req.Answers); err != nil {
		return nil, err
	}

	response := &models.Response{QuizID: quiz.ID}
	answers := make([]models.Answer, 0, len(quiz.Questions))

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

	if err := tx.Create(response).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create response: %w", err)
	}

	for _, q := range quiz.Questions {
		answers = append(answers, models.Answer{
			ResponseID: response.ID,
			QuestionID: q.ID,
			Value:      req.Answers[q.ID],
		})
	}
	if len(answers) > 0 {
		if err := tx.Create(&answers).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create answers: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit response: %w", err)
	}

	for i := range answers {
		answers[i].Question = quiz.Question(answers[i].QuestionID)
	}
	response.Answers = answers

	s.metrics.ResponsesSubmitted.Inc()
	s.log.WithQuizID(quiz.ID).WithField("response_id", response.ID).Info("response submitted")

	if s.notifier != nil {
		s.notifier.ResponseSubmitted(quiz.ID, response)
	}

	return response, nil
}

// ListResponses returns every response for the quiz newest first. Only the
// quiz creator may call it.
func (s *ResponseService) ListResponses(ctx context.Context, id Identity, quizID string) (*QuizResponses, error) {
	quiz, err := s.quizzes.GetOwnedQuiz(ctx, id, quizID)
	if err != nil {
		return nil, err
	}

	var responses []models.Response
	err = s.db.WithContext(ctx).
		Where("quiz_id = ?", quiz.ID).
		Preload("Answers").
		Preload("Answers.Question").
		Order("created_at DESC").
		Order("id").
		Find(&responses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	for i := range responses {
		sortAnswers(responses[i].Answers)
	}

	if responses == nil {
		responses = []models.Response{}
	}
	return &QuizResponses{Quiz: quiz, Responses: responses}, nil
}

// sortAnswers puts answers in question display order. Answers whose question
// could not be loaded go last.
func sortAnswers(answers []models.Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		qi, qj := answers[i].Question, answers[j].Question
		if qi == nil || qj == nil {
			return qi != nil
		}
		return qi.Order < qj.Order
	})
}
