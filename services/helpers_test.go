package services

import (
	"sync"
	"testing"
	"time"

	"quickquiz/config"
	"quickquiz/logger"
	"quickquiz/metrics"
	"quickquiz/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.InitDB(&config.Config{DBDriver: "sqlite", DBName: ":memory:"}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func seedUser(t *testing.T, db *gorm.DB, name, email string) *models.User {
	t.Helper()

	user := &models.User{Name: name, Email: email, PasswordHash: "not-a-real-hash"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// recordingNotifier captures ResponseSubmitted calls.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.Response
	quizID []string
}

func (n *recordingNotifier) ResponseSubmitted(quizID string, response *models.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quizID = append(n.quizID, quizID)
	n.events = append(n.events, response)
}

type testEnv struct {
	db        *gorm.DB
	metrics   *metrics.Metrics
	quizzes   *QuizService
	responses *ResponseService
	auth      *AuthService
	notifier  *recordingNotifier
}

func newTestEnv(t *testing.T, cache QuizCache) *testEnv {
	t.Helper()

	db := newTestDB(t)
	m := newTestMetrics()
	log := logger.Discard()
	notifier := &recordingNotifier{}

	quizzes := NewQuizService(db, cache, m, log)
	auth := NewAuthService(db, "test-secret", time.Hour, log)
	auth.hashCost = bcrypt.MinCost

	return &testEnv{
		db:        db,
		metrics:   m,
		quizzes:   quizzes,
		responses: NewResponseService(db, quizzes, notifier, m, log),
		auth:      auth,
		notifier:  notifier,
	}
}

func petsRequest() *CreateQuizRequest {
	return &CreateQuizRequest{
		Title: "Pets",
		Questions: []CreateQuestionRequest{
			{Text: "Cat or dog?", Type: models.QuestionTypeSingleChoice, Options: []string{"Cat", "Dog"}, Order: 0},
			{Text: "Why?", Type: models.QuestionTypeText, Options: []string{}, Order: 1},
		},
	}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
