package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nutrilog/internal/model"
)

// Client is a Store that talks to a remote store server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends a request with an optional JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("request marshal failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		}
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode, apiErr.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("JSON decode error: %w", err)
	}
	return nil
}

func (c *Client) ListMeals(ctx context.Context) ([]model.MealRecord, error) {
	var out []model.MealRecord
	if err := c.do(ctx, http.MethodGet, "/meals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMealsByDate(ctx context.Context, date string) ([]model.MealRecord, error) {
	var out []model.MealRecord
	q := url.Values{"date": {date}}
	if err := c.do(ctx, http.MethodGet, "/meals?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMeal(ctx context.Context, id int64) (model.MealRecord, error) {
	var out model.MealRecord
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/meals/%d", id), nil, &out)
	return out, err
}

func (c *Client) CreateMeal(ctx context.Context, m model.MealRecord) (model.MealRecord, error) {
	var out model.MealRecord
	err := c.do(ctx, http.MethodPost, "/meals", m, &out)
	return out, err
}

func (c *Client) UpdateMeal(ctx context.Context, id int64, u model.MealUpdate) (model.MealRecord, error) {
	var out model.MealRecord
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/meals/%d", id), u, &out)
	return out, err
}

func (c *Client) DeleteMeal(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/meals/%d", id), nil, nil)
}

func (c *Client) ListIngredients(ctx context.Context, mealID int64) ([]model.Ingredient, error) {
	var out []model.Ingredient
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/meals/%d/ingredients", mealID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateIngredient(ctx context.Context, in model.Ingredient) (model.Ingredient, error) {
	var out model.Ingredient
	err := c.do(ctx, http.MethodPost, "/ingredients", in, &out)
	return out, err
}

func (c *Client) UpdateIngredient(ctx context.Context, id int64, u model.IngredientUpdate) (model.Ingredient, error) {
	var out model.Ingredient
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/ingredients/%d", id), u, &out)
	return out, err
}

func (c *Client) DeleteIngredient(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/ingredients/%d", id), nil, nil)
}

func (c *Client) GetNutrition(ctx context.Context, mealID int64) (model.MealNutrition, error) {
	var out model.MealNutrition
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/meals/%d/nutrition", mealID), nil, &out)
	return out, err
}

func (c *Client) CreateNutrition(ctx context.Context, n model.MealNutrition) (model.MealNutrition, error) {
	var out model.MealNutrition
	err := c.do(ctx, http.MethodPost, "/nutrition", n, &out)
	return out, err
}

func (c *Client) UpdateNutrition(ctx context.Context, id int64, totals model.NutritionTotals) (model.MealNutrition, error) {
	var out model.MealNutrition
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/nutrition/%d", id), totals, &out)
	return out, err
}

func (c *Client) DeleteNutrition(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/nutrition/%d", id), nil, nil)
}

func (c *Client) GetDailyGrade(ctx context.Context, date string) (model.DailyGrade, error) {
	var out model.DailyGrade
	err := c.do(ctx, http.MethodGet, "/daily-grades/"+url.PathEscape(date), nil, &out)
	return out, err
}

var (
	_ Store = (*Client)(nil)
	_ Store = (*SQLite)(nil)
)
