package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nutrilog/internal/model"
	"nutrilog/internal/util"
)

func (s *Server) listMeals(c *gin.Context) {
	var (
		meals []model.MealRecord
		err   error
	)
	if date := c.Query("date"); date != "" {
		if perr := util.ValidateDate(date); perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		meals, err = s.store.ListMealsByDate(c.Request.Context(), date)
	} else {
		meals, err = s.store.ListMeals(c.Request.Context())
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, meals)
}

func (s *Server) getMeal(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	m, err := s.store.GetMeal(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) createMeal(c *gin.Context) {
	var body model.MealRecord
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MealName == "" || !body.MealGrade.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meal_name and a valid meal_grade are required"})
		return
	}
	body.ID = 0

	m, err := s.store.CreateMeal(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) updateMeal(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body model.MealUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MealGrade != nil && !body.MealGrade.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meal_grade"})
		return
	}

	m, err := s.store.UpdateMeal(c.Request.Context(), id, body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMeal(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteMeal(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listIngredients(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	list, err := s.store.ListIngredients(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createIngredient(c *gin.Context) {
	var body model.Ingredient
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MealID <= 0 || body.Name == "" || body.Unit == "" || body.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meal_id, name, unit and a positive quantity are required"})
		return
	}
	body.ID = 0

	in, err := s.store.CreateIngredient(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, in)
}

func (s *Server) updateIngredient(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body model.IngredientUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Quantity != nil && *body.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
		return
	}

	in, err := s.store.UpdateIngredient(c.Request.Context(), id, body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

func (s *Server) deleteIngredient(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteIngredient(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getNutrition(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	n, err := s.store.GetNutrition(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) createNutrition(c *gin.Context) {
	var body model.MealNutrition
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.MealID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meal_id is required"})
		return
	}
	body.ID = 0

	n, err := s.store.CreateNutrition(c.Request.Context(), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) updateNutrition(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body model.NutritionTotals
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := s.store.UpdateNutrition(c.Request.Context(), id, body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) deleteNutrition(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteNutrition(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getDailyGrade(c *gin.Context) {
	date := c.Param("date")
	if err := util.ValidateDate(date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	d, err := s.store.GetDailyGrade(c.Request.Context(), date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
