package handlers

import (
	"net/http"
	"time"

	"quickquiz/logger"
	"quickquiz/models"
	"quickquiz/services"

	"github.com/gin-gonic/gin"
)

type QuizHandler struct {
	quizService     *services.QuizService
	responseService *services.ResponseService
	log             *logger.Logger
}

func NewQuizHandler(quizService *services.QuizService, responseService *services.ResponseService, log *logger.Logger) *QuizHandler {
	registerValidators()
	return &QuizHandler{
		quizService:     quizService,
		responseService: responseService,
		log:             log,
	}
}

// publicQuiz is what respondents see: no creator id or email.
type publicQuiz struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	Creator     publicCreator     `json:"creator"`
	Questions   []models.Question `json:"questions"`
}

type publicCreator struct {
	Name string `json:"name"`
}

func newPublicQuiz(quiz *models.Quiz) publicQuiz {
	out := publicQuiz{
		ID:          quiz.ID,
		Title:       quiz.Title,
		Description: quiz.Description,
		CreatedAt:   quiz.CreatedAt,
		Questions:   quiz.Questions,
	}
	if quiz.Creator != nil {
		out.Creator.Name = quiz.Creator.Name
	}
	if out.Questions == nil {
		out.Questions = []models.Question{}
	}
	return out
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req services.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	quiz, err := h.quizService.CreateQuiz(c.Request.Context(), identity(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) GetUserQuizzes(c *gin.Context) {
	quizzes, err := h.quizService.GetUserQuizzes(c.Request.Context(), identity(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, quizzes)
}

func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quiz, err := h.quizService.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, newPublicQuiz(quiz))
}

func (h *QuizHandler) SubmitResponse(c *gin.Context) {
	// An unknown quiz is a 404 whatever the body holds.
	quiz, err := h.quizService.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	var req services.SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}

	if _, err := h.responseService.SubmitToQuiz(c.Request.Context(), quiz, &req); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *QuizHandler) ListResponses(c *gin.Context) {
	responses, err := h.responseService.ListResponses(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, responses)
}
