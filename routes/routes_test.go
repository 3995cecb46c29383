package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quickquiz/config"
	"quickquiz/handlers"
	"quickquiz/logger"
	"quickquiz/metrics"
	"quickquiz/middleware"
	"quickquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.Discard()
	db, err := config.InitDB(&config.Config{DBDriver: "sqlite", DBName: ":memory:"}, log)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	m := metrics.New(prometheus.NewRegistry())
	hub := services.NewHub(m, log)
	go hub.Run()

	authService := services.NewAuthService(db, "test-secret", time.Hour, log)
	quizService := services.NewQuizService(db, nil, m, log)
	responseService := services.NewResponseService(db, quizService, hub, m, log)

	router := gin.New()
	router.Use(middleware.Metrics(m))
	SetupRoutes(router,
		handlers.NewAuthHandler(authService, log),
		handlers.NewQuizHandler(quizService, responseService, log),
		handlers.NewFeedHandler(quizService, hub, []string{"*"}, log),
		authService,
		m,
	)
	return &testServer{router: router}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// signIn creates an account and returns a session token for it.
func (s *testServer) signIn(t *testing.T, name, email string) string {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"name": name, "email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

type quizBody struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`
	Creator   struct {
		Name string `json:"name"`
	} `json:"creator"`
	Questions []struct {
		ID      string   `json:"id"`
		Text    string   `json:"text"`
		Type    string   `json:"type"`
		Options []string `json:"options"`
		Order   int      `json:"order"`
	} `json:"questions"`
}

func petsQuiz() gin.H {
	return gin.H{
		"title": "Pets",
		"questions": []gin.H{
			{"text": "Why?", "type": "TEXT", "options": []string{}, "order": 1},
			{"text": "Cat or dog?", "type": "SINGLE_CHOICE", "options": []string{"Cat", "Dog"}, "order": 0},
		},
	}
}

func (s *testServer) createPets(t *testing.T, token string) quizBody {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/quizzes", token, petsQuiz())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var quiz quizBody
	decode(t, w, &quiz)
	return quiz
}

func TestPetsScenario(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "Ada", "ada@example.com")

	created := s.createPets(t, token)
	require.Len(t, created.Questions, 2)
	assert.Equal(t, "Cat or dog?", created.Questions[0].Text)
	assert.Equal(t, "Why?", created.Questions[1].Text)

	t.Run("public retrieval", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/quizzes/"+created.ID, "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var quiz quizBody
		decode(t, w, &quiz)
		assert.Equal(t, "Ada", quiz.Creator.Name)
		assert.Empty(t, quiz.CreatorID)
		require.Len(t, quiz.Questions, 2)
		assert.Equal(t, []string{"Cat", "Dog"}, quiz.Questions[0].Options)
		assert.Equal(t, []string{}, quiz.Questions[1].Options)
		assert.NotContains(t, w.Body.String(), "ada@example.com")
	})

	w := s.do(t, http.MethodPost, "/api/quizzes/"+created.ID+"/submit", "", gin.H{"answers": gin.H{
		created.Questions[0].ID: "Cat",
		created.Questions[1].ID: "Because",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	t.Run("owner lists responses", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/quizzes/"+created.ID+"/responses", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body struct {
			Responses []struct {
				Answers []struct {
					Value    string `json:"value"`
					Question struct {
						Text string `json:"text"`
					} `json:"question"`
				} `json:"answers"`
			} `json:"responses"`
		}
		decode(t, w, &body)
		require.Len(t, body.Responses, 1)
		require.Len(t, body.Responses[0].Answers, 2)
		assert.Equal(t, "Cat or dog?", body.Responses[0].Answers[0].Question.Text)
		assert.Equal(t, "Cat", body.Responses[0].Answers[0].Value)
		assert.Equal(t, "Why?", body.Responses[0].Answers[1].Question.Text)
		assert.Equal(t, "Because", body.Responses[0].Answers[1].Value)
	})

	t.Run("dashboard counts responses", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/quizzes", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var rows []struct {
			ID            string `json:"id"`
			ResponseCount int64  `json:"response_count"`
		}
		decode(t, w, &rows)
		require.Len(t, rows, 1)
		assert.Equal(t, created.ID, rows[0].ID)
		assert.Equal(t, int64(1), rows[0].ResponseCount)
	})
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	owner := s.signIn(t, "Ada", "ada@example.com")
	stranger := s.signIn(t, "Eve", "eve@example.com")
	quiz := s.createPets(t, owner)
	missing := "/api/quizzes/7d0c1f0e-8a43-4c1e-9d1b-3a4f3c2b1a00"

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{"create without token", http.MethodPost, "/api/quizzes", "", petsQuiz(), http.StatusUnauthorized, "Unauthorized"},
		{"create with bad token", http.MethodPost, "/api/quizzes", "garbage", petsQuiz(), http.StatusUnauthorized, "Unauthorized"},
		{"too few questions", http.MethodPost, "/api/quizzes", owner, gin.H{"title": "Solo", "questions": []gin.H{{"text": "Only?", "type": "TEXT"}}}, http.StatusBadRequest, "At least 2 questions are required"},
		{"unknown question type", http.MethodPost, "/api/quizzes", owner, gin.H{"title": "T", "questions": []gin.H{{"text": "A", "type": "ESSAY"}, {"text": "B", "type": "TEXT", "order": 1}}}, http.StatusBadRequest, "Type must be one of SINGLE_CHOICE, TEXT"},
		{"malformed json", http.MethodPost, "/api/quizzes", owner, "{", http.StatusBadRequest, "Invalid request body"},
		{"malformed id", http.MethodGet, "/api/quizzes/not-a-uuid", "", nil, http.StatusNotFound, "Quiz not found"},
		{"missing quiz", http.MethodGet, missing, "", nil, http.StatusNotFound, "Quiz not found"},
		{"submit to missing quiz", http.MethodPost, missing + "/submit", "", gin.H{"answers": gin.H{"x": "y"}}, http.StatusNotFound, "Quiz not found"},
		{"submit empty body to missing quiz", http.MethodPost, missing + "/submit", "", gin.H{}, http.StatusNotFound, "Quiz not found"},
		{"submit null answers to missing quiz", http.MethodPost, missing + "/submit", "", gin.H{"answers": nil}, http.StatusNotFound, "Quiz not found"},
		{"submit mistyped answers to missing quiz", http.MethodPost, missing + "/submit", "", gin.H{"answers": gin.H{"q": 1}}, http.StatusNotFound, "Quiz not found"},
		{"submit malformed json to missing quiz", http.MethodPost, missing + "/submit", "", "{", http.StatusNotFound, "Quiz not found"},
		{"submit mistyped answers", http.MethodPost, "/api/quizzes/" + quiz.ID + "/submit", "", gin.H{"answers": gin.H{"q": 1}}, http.StatusBadRequest, "Invalid request body"},
		{"submit without answers", http.MethodPost, "/api/quizzes/" + quiz.ID + "/submit", "", gin.H{}, http.StatusBadRequest, "Answers is required"},
		{"submit incomplete", http.MethodPost, "/api/quizzes/" + quiz.ID + "/submit", "", gin.H{"answers": gin.H{quiz.Questions[0].ID: "Cat"}}, http.StatusBadRequest, "Question 2 requires an answer"},
		{"responses without token", http.MethodGet, "/api/quizzes/" + quiz.ID + "/responses", "", nil, http.StatusUnauthorized, "Unauthorized"},
		{"responses of another user's quiz", http.MethodGet, "/api/quizzes/" + quiz.ID + "/responses", stranger, nil, http.StatusForbidden, "Forbidden"},
		{"responses of missing quiz", http.MethodGet, missing + "/responses", stranger, nil, http.StatusNotFound, "Quiz not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var body map[string]string
			decode(t, w, &body)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "Ada", "ada@example.com")

	t.Run("profile", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/auth/profile", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"email":"ada@example.com"`)
		assert.NotContains(t, w.Body.String(), "password")
	})

	tests := []struct {
		name       string
		path       string
		body       gin.H
		wantStatus int
		wantError  string
	}{
		{"duplicate signup", "/api/auth/signup", gin.H{"name": "Ada", "email": "ADA@example.com", "password": "password123"}, http.StatusBadRequest, "User already exists"},
		{"invalid email", "/api/auth/signup", gin.H{"name": "Bob", "email": "bob", "password": "password123"}, http.StatusBadRequest, "Email must be a valid email address"},
		{"short password", "/api/auth/signup", gin.H{"name": "Bob", "email": "bob@example.com", "password": "short"}, http.StatusBadRequest, "Password must be at least 8 characters"},
		{"password over 72 bytes", "/api/auth/signup", gin.H{"name": "Bob", "email": "bob@example.com", "password": strings.Repeat("é", 72)}, http.StatusBadRequest, "Password must be at most 72 bytes"},
		{"missing name", "/api/auth/signup", gin.H{"email": "bob@example.com", "password": "password123"}, http.StatusBadRequest, "Name is required"},
		{"wrong password", "/api/auth/login", gin.H{"email": "ada@example.com", "password": "password124"}, http.StatusUnauthorized, "Invalid email or password"},
		{"unknown email", "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "password123"}, http.StatusUnauthorized, "Invalid email or password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var body map[string]string
			decode(t, w, &body)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `quickquiz_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestLiveResponseFeed(t *testing.T) {
	s := newTestServer(t)
	owner := s.signIn(t, "Ada", "ada@example.com")
	stranger := s.signIn(t, "Eve", "eve@example.com")
	quiz := s.createPets(t, owner)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quizzes/" + quiz.ID + "/responses?token="

	t.Run("stranger is refused", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+stranger, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+owner, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The hub registers the socket asynchronously; retry the submission
	// until the feed delivers it.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	received := make(chan services.Message, 1)
	go func() {
		var msg services.Message
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}()

	answers := gin.H{"answers": gin.H{quiz.Questions[0].ID: "Dog", quiz.Questions[1].ID: "Loyal"}}
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodPost, "/api/quizzes/"+quiz.ID+"/submit", "", answers)
		if w.Code != http.StatusOK {
			return false
		}
		select {
		case msg := <-received:
			return msg.Type == "response_submitted"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
