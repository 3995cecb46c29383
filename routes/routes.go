package routes

import (
	"net/http"

	"quickquiz/handlers"
	"quickquiz/metrics"
	"quickquiz/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	quizHandler *handlers.QuizHandler,
	feedHandler *handlers.FeedHandler,
	tokens middleware.TokenParser,
	m *metrics.Metrics,
) {
	requireAuth := middleware.AuthMiddleware(tokens)

	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/profile", requireAuth, authHandler.GetProfile)
		}

		quizzes := api.Group("/quizzes")
		{
			// Public: anyone holding the id can take the quiz
			quizzes.GET("/:id", quizHandler.GetQuiz)
			quizzes.POST("/:id/submit", quizHandler.SubmitResponse)

			quizzes.GET("", requireAuth, quizHandler.GetUserQuizzes)
			quizzes.POST("", requireAuth, quizHandler.CreateQuiz)
			quizzes.GET("/:id/responses", requireAuth, quizHandler.ListResponses)
		}
	}

	// Live response feed for the quiz owner
	router.GET("/ws/quizzes/:id/responses", requireAuth, feedHandler.WatchResponses)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
}
