package handlers

import (
	"net/http"

	"quickquiz/logger"
	"quickquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// FeedHandler upgrades the quiz owner's connection to the live response feed.
type FeedHandler struct {
	quizService *services.QuizService
	hub         *services.Hub
	upgrader    websocket.Upgrader
	log         *logger.Logger
}

func NewFeedHandler(quizService *services.QuizService, hub *services.Hub, origins []string, log *logger.Logger) *FeedHandler {
	return &FeedHandler{
		quizService: quizService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		log: log,
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

func (h *FeedHandler) WatchResponses(c *gin.Context) {
	id := identity(c)
	quiz, err := h.quizService.GetOwnedQuiz(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		h.log.WithQuizID(quiz.ID).WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.hub.RegisterClient(conn, quiz.ID, id.UserID)
}
