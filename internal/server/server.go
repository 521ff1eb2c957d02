package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog/internal/store"
)

// Server exposes a Store over REST and its change feed over a websocket.
type Server struct {
	store store.Store
	feed  *store.Feed
	log   *slog.Logger
}

// New creates a server for st whose writes are published on feed.
func New(st store.Store, feed *store.Feed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, feed: feed, log: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	meals := r.Group("/meals")
	{
		meals.GET("", s.listMeals)
		meals.POST("", s.createMeal)
		meals.GET("/:id", s.getMeal)
		meals.PATCH("/:id", s.updateMeal)
		meals.DELETE("/:id", s.deleteMeal)
		meals.GET("/:id/ingredients", s.listIngredients)
		meals.GET("/:id/nutrition", s.getNutrition)
	}

	ingredients := r.Group("/ingredients")
	{
		ingredients.POST("", s.createIngredient)
		ingredients.PATCH("/:id", s.updateIngredient)
		ingredients.DELETE("/:id", s.deleteIngredient)
	}

	nutrition := r.Group("/nutrition")
	{
		nutrition.POST("", s.createNutrition)
		nutrition.PATCH("/:id", s.updateNutrition)
		nutrition.DELETE("/:id", s.deleteNutrition)
	}

	r.GET("/daily-grades/:date", s.getDailyGrade)
	r.GET("/realtime", s.realtime)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.log.Error("store request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
