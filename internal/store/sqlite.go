package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"nutrilog/internal/grade"
	"nutrilog/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS meal_logs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    meal_name        TEXT NOT NULL,
    meal_description TEXT NOT NULL DEFAULT '',
    meal_grade       TEXT NOT NULL CHECK(meal_grade IN ('A','B','C','D','E')),
    original_grade   TEXT CHECK(original_grade IN ('A','B','C','D','E') OR original_grade IS NULL),
    comment          TEXT,
    meal_date        TEXT NOT NULL,
    calories         REAL NOT NULL DEFAULT 0,
    protein          REAL NOT NULL DEFAULT 0,
    carbs            REAL NOT NULL DEFAULT 0,
    fat              REAL NOT NULL DEFAULT 0,
    sugar            REAL NOT NULL DEFAULT 0,
    fiber            REAL NOT NULL DEFAULT 0,
    sodium           REAL NOT NULL DEFAULT 0,
    tip_followed     INTEGER NOT NULL DEFAULT 0 CHECK(tip_followed IN (0,1)),
    created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS meal_ingredients (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    meal_id      INTEGER NOT NULL REFERENCES meal_logs(id),
    name         TEXT NOT NULL,
    quantity     REAL NOT NULL CHECK(quantity > 0),
    unit         TEXT NOT NULL,
    emoji        TEXT NOT NULL DEFAULT '',
    is_estimated INTEGER NOT NULL DEFAULT 0 CHECK(is_estimated IN (0,1)),
    calories     REAL NOT NULL DEFAULT 0,
    protein      REAL NOT NULL DEFAULT 0,
    carbs        REAL NOT NULL DEFAULT 0,
    fat          REAL NOT NULL DEFAULT 0,
    sugar        REAL NOT NULL DEFAULT 0,
    fiber        REAL NOT NULL DEFAULT 0,
    sodium       REAL NOT NULL DEFAULT 0,
    position     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS meal_nutrition (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    meal_id         INTEGER NOT NULL UNIQUE REFERENCES meal_logs(id),
    calories        REAL NOT NULL DEFAULT 0,
    protein_g       REAL NOT NULL DEFAULT 0,
    fat_g           REAL NOT NULL DEFAULT 0,
    carbohydrates_g REAL NOT NULL DEFAULT 0,
    fiber_g         REAL NOT NULL DEFAULT 0,
    sugar_g         REAL NOT NULL DEFAULT 0,
    sodium_mg       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS daily_grades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    date          TEXT NOT NULL UNIQUE,
    average_grade TEXT NOT NULL CHECK(average_grade IN ('A','B','C','D','E')),
    meal_count    INTEGER NOT NULL,
    grades        TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_meal_logs_meal_date ON meal_logs(meal_date DESC);
CREATE INDEX IF NOT EXISTS idx_meal_ingredients_meal_id ON meal_ingredients(meal_id, position);
`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db   *sql.DB
	feed *Feed
	log  *slog.Logger
	now  func() time.Time
}

// Open opens or creates the SQLite database at dbPath and initializes the
// schema. Committed writes are published to feed.
func Open(dbPath string, feed *Feed, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if feed == nil {
		feed = NewFeed(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLite{db: db, feed: feed, log: logger, now: time.Now}, nil
}

// Feed returns the feed that committed writes are published to.
func (s *SQLite) Feed() *Feed { return s.feed }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// change is a pending event, published only once its transaction commits.
type change struct {
	table  string
	typ    model.EventType
	newRow any
	oldRow any
}

// withTx runs fn in a transaction and publishes the changes it records after
// a successful commit.
func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx, record func(change)) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var changes []change
	record := func(c change) { changes = append(changes, c) }

	if err := fn(tx, record); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, c := range changes {
		ev, err := model.NewChangeEvent(c.table, c.typ, c.newRow, c.oldRow)
		if err != nil {
			s.log.Error("store: failed to build change event", "table", c.table, "err", err)
			continue
		}
		s.feed.Publish(ev)
	}
	return nil
}

// Meals

const mealColumns = `id, meal_name, meal_description, meal_grade, original_grade, comment, meal_date,
	calories, protein, carbs, fat, sugar, fiber, sodium, tip_followed`

func scanMeal(row rowScanner) (model.MealRecord, error) {
	var m model.MealRecord
	var mealGrade string
	var originalGrade, comment sql.NullString
	var mealDate string
	var tipFollowed int64

	if err := row.Scan(
		&m.ID, &m.MealName, &m.MealDescription, &mealGrade, &originalGrade, &comment, &mealDate,
		&m.Calories, &m.Protein, &m.Carbs, &m.Fat, &m.Sugar, &m.Fiber, &m.Sodium, &tipFollowed,
	); err != nil {
		return model.MealRecord{}, err
	}

	m.MealGrade = grade.Letter(mealGrade)
	m.OriginalGrade = grade.Letter(originalGrade.String)
	m.Comment = comment.String
	m.TipFollowed = tipFollowed == 1
	if t, err := time.Parse(time.RFC3339Nano, mealDate); err == nil {
		m.MealDate = t
	}
	return m, nil
}

func (s *SQLite) listMeals(ctx context.Context, q queryer, where string, args ...any) ([]model.MealRecord, error) {
	query := `SELECT ` + mealColumns + ` FROM meal_logs ` + where

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	results := []model.MealRecord{}
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal row: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meal rows: %w", err)
	}
	return results, nil
}

// ListMeals returns every meal, newest first.
func (s *SQLite) ListMeals(ctx context.Context) ([]model.MealRecord, error) {
	return s.listMeals(ctx, s.db, `ORDER BY meal_date DESC, id DESC`)
}

// ListMealsByDate returns the meals logged on date, oldest first.
func (s *SQLite) ListMealsByDate(ctx context.Context, date string) ([]model.MealRecord, error) {
	return s.listMeals(ctx, s.db, `WHERE substr(meal_date, 1, 10) = ? ORDER BY meal_date, id`, date)
}

func getMeal(ctx context.Context, q queryer, id int64) (model.MealRecord, error) {
	m, err := scanMeal(q.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meal_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.MealRecord{}, fmt.Errorf("meal %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.MealRecord{}, fmt.Errorf("failed to get meal: %w", err)
	}
	return m, nil
}

// GetMeal retrieves a single meal by ID.
func (s *SQLite) GetMeal(ctx context.Context, id int64) (model.MealRecord, error) {
	return getMeal(ctx, s.db, id)
}

// CreateMeal inserts m and returns the stored row.
func (s *SQLite) CreateMeal(ctx context.Context, m model.MealRecord) (model.MealRecord, error) {
	if !m.MealGrade.Valid() {
		return model.MealRecord{}, fmt.Errorf("invalid meal grade %q", m.MealGrade)
	}
	if m.MealDate.IsZero() {
		m.MealDate = s.now()
	}

	var created model.MealRecord
	err := s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		query := `
			INSERT INTO meal_logs (meal_name, meal_description, meal_grade, original_grade, comment, meal_date,
				calories, protein, carbs, fat, sugar, fiber, sodium, tip_followed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		var originalGrade, comment any
		if m.OriginalGrade != "" {
			originalGrade = string(m.OriginalGrade)
		}
		if m.Comment != "" {
			comment = m.Comment
		}

		result, err := tx.ExecContext(ctx, query,
			m.MealName, m.MealDescription, string(m.MealGrade), originalGrade, comment,
			m.MealDate.UTC().Format(time.RFC3339Nano),
			m.Calories, m.Protein, m.Carbs, m.Fat, m.Sugar, m.Fiber, m.Sodium, boolInt(m.TipFollowed),
		)
		if err != nil {
			return fmt.Errorf("failed to insert meal: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		created, err = getMeal(ctx, tx, id)
		if err != nil {
			return err
		}
		record(change{table: model.TableMealLogs, typ: model.EventInsert, newRow: created})
		return s.refreshDailyGrade(ctx, tx, record, created.Day())
	})
	if err != nil {
		return model.MealRecord{}, err
	}
	return created, nil
}

// UpdateMeal applies u to the meal and returns the stored row.
func (s *SQLite) UpdateMeal(ctx context.Context, id int64, u model.MealUpdate) (model.MealRecord, error) {
	if u.MealGrade != nil && !u.MealGrade.Valid() {
		return model.MealRecord{}, fmt.Errorf("invalid meal grade %q", *u.MealGrade)
	}

	var updated model.MealRecord
	err := s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		old, err := getMeal(ctx, tx, id)
		if err != nil {
			return err
		}
		next := u.Apply(old)

		query := `
			UPDATE meal_logs
			SET meal_name = ?, meal_description = ?, meal_grade = ?, original_grade = ?, comment = ?, tip_followed = ?
			WHERE id = ?
		`
		var originalGrade any
		if next.OriginalGrade != "" {
			originalGrade = string(next.OriginalGrade)
		}
		if _, err := tx.ExecContext(ctx, query,
			next.MealName, next.MealDescription, string(next.MealGrade), originalGrade, next.Comment,
			boolInt(next.TipFollowed), id,
		); err != nil {
			return fmt.Errorf("failed to update meal: %w", err)
		}

		updated, err = getMeal(ctx, tx, id)
		if err != nil {
			return err
		}
		record(change{table: model.TableMealLogs, typ: model.EventUpdate, newRow: updated, oldRow: old})
		if old.MealGrade != updated.MealGrade {
			return s.refreshDailyGrade(ctx, tx, record, updated.Day())
		}
		return nil
	})
	if err != nil {
		return model.MealRecord{}, err
	}
	return updated, nil
}

// DeleteMeal deletes a meal together with its ingredients and nutrition.
func (s *SQLite) DeleteMeal(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		old, err := getMeal(ctx, tx, id)
		if err != nil {
			return err
		}

		ingredients, err := listIngredients(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM meal_ingredients WHERE meal_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete ingredients: %w", err)
		}
		for _, in := range ingredients {
			record(change{table: model.TableMealIngredients, typ: model.EventDelete, oldRow: in})
		}

		if n, err := getNutrition(ctx, tx, id); err == nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM meal_nutrition WHERE id = ?", n.ID); err != nil {
				return fmt.Errorf("failed to delete nutrition: %w", err)
			}
			record(change{table: model.TableMealNutrition, typ: model.EventDelete, oldRow: n})
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM meal_logs WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete meal: %w", err)
		}
		record(change{table: model.TableMealLogs, typ: model.EventDelete, oldRow: old})
		return s.refreshDailyGrade(ctx, tx, record, old.Day())
	})
}

// Ingredients

const ingredientColumns = `id, meal_id, name, quantity, unit, emoji, is_estimated,
	calories, protein, carbs, fat, sugar, fiber, sodium, position`

func scanIngredient(row rowScanner) (model.Ingredient, error) {
	var in model.Ingredient
	var estimated int64
	if err := row.Scan(
		&in.ID, &in.MealID, &in.Name, &in.Quantity, &in.Unit, &in.Emoji, &estimated,
		&in.Calories, &in.Protein, &in.Carbs, &in.Fat, &in.Sugar, &in.Fiber, &in.Sodium, &in.Position,
	); err != nil {
		return model.Ingredient{}, err
	}
	in.IsEstimated = estimated == 1
	return in, nil
}

func listIngredients(ctx context.Context, q queryer, mealID int64) ([]model.Ingredient, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+ingredientColumns+` FROM meal_ingredients WHERE meal_id = ? ORDER BY position, id`, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer rows.Close()

	results := []model.Ingredient{}
	for rows.Next() {
		in, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingredient row: %w", err)
		}
		results = append(results, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingredient rows: %w", err)
	}
	return results, nil
}

func getIngredient(ctx context.Context, q queryer, id int64) (model.Ingredient, error) {
	in, err := scanIngredient(q.QueryRowContext(ctx,
		`SELECT `+ingredientColumns+` FROM meal_ingredients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ingredient{}, fmt.Errorf("ingredient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Ingredient{}, fmt.Errorf("failed to get ingredient: %w", err)
	}
	return in, nil
}

// ListIngredients returns the ingredients of a meal in dish order.
func (s *SQLite) ListIngredients(ctx context.Context, mealID int64) ([]model.Ingredient, error) {
	return listIngredients(ctx, s.db, mealID)
}

// CreateIngredient inserts an ingredient of an existing meal.
func (s *SQLite) CreateIngredient(ctx context.Context, in model.Ingredient) (model.Ingredient, error) {
	var created model.Ingredient
	err := s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		if _, err := getMeal(ctx, tx, in.MealID); err != nil {
			return err
		}

		query := `
			INSERT INTO meal_ingredients (meal_id, name, quantity, unit, emoji, is_estimated,
				calories, protein, carbs, fat, sugar, fiber, sodium, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query,
			in.MealID, in.Name, in.Quantity, in.Unit, in.Emoji, boolInt(in.IsEstimated),
			in.Calories, in.Protein, in.Carbs, in.Fat, in.Sugar, in.Fiber, in.Sodium, in.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ingredient: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		created, err = getIngredient(ctx, tx, id)
		if err != nil {
			return err
		}
		record(change{table: model.TableMealIngredients, typ: model.EventInsert, newRow: created})
		return nil
	})
	if err != nil {
		return model.Ingredient{}, err
	}
	return created, nil
}

// UpdateIngredient applies u to an ingredient.
func (s *SQLite) UpdateIngredient(ctx context.Context, id int64, u model.IngredientUpdate) (model.Ingredient, error) {
	var updated model.Ingredient
	err := s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		old, err := getIngredient(ctx, tx, id)
		if err != nil {
			return err
		}
		next := old
		if u.Name != nil {
			next.Name = *u.Name
		}
		if u.Quantity != nil {
			next.Quantity = *u.Quantity
		}
		if u.Unit != nil {
			next.Unit = *u.Unit
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE meal_ingredients SET name = ?, quantity = ?, unit = ? WHERE id = ?`,
			next.Name, next.Quantity, next.Unit, id,
		); err != nil {
			return fmt.Errorf("failed to update ingredient: %w", err)
		}

		updated = next
		record(change{table: model.TableMealIngredients, typ: model.EventUpdate, newRow: updated, oldRow: old})
		return nil
	})
	if err != nil {
		return model.Ingredient{}, err
	}
	return updated, nil
}

// DeleteIngredient deletes an ingredient.
func (s *SQLite) DeleteIngredient(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		old, err := getIngredient(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM meal_ingredients WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete ingredient: %w", err)
		}
		record(change{table: model.TableMealIngredients, typ: model.EventDelete, oldRow: old})
		return nil
	})
}

// Nutrition

const nutritionColumns = `id, meal_id, calories, protein_g, fat_g, carbohydrates_g, fiber_g, sugar_g, sodium_mg`

func scanNutrition(row rowScanner) (model.MealNutrition, error) {
	var n model.MealNutrition
	err := row.Scan(&n.ID, &n.MealID, &n.Calories, &n.ProteinG, &n.FatG, &n.CarbohydrateG, &n.FiberG, &n.SugarG, &n.SodiumMg)
	return n, err
}

func getNutrition(ctx context.Context, q queryer, mealID int64) (model.MealNutrition, error) {
	n, err := scanNutrition(q.QueryRowContext(ctx,
		`SELECT `+nutritionColumns+` FROM meal_nutrition WHERE meal_id = ?`, mealID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.MealNutrition{}, fmt.Errorf("nutrition of meal %d: %w", mealID, ErrNotFound)
	}
	if err != nil {
		return model.MealNutrition{}, fmt.Errorf("failed to get nutrition: %w", err)
	}
	return n, nil
}

func getNutritionByID(ctx context.Context, q queryer, id int64) (model.MealNutrition, error) {
	n, err := scanNutrition(q.QueryRowContext(ctx,
		`SELECT `+nutritionColumns+` FROM meal_nutrition WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.MealNutrition{}, fmt.Errorf("nutrition %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.MealNutrition{}, fmt.Errorf("failed to get nutrition: %w", err)
	}
	return n, nil
}

// GetNutrition returns the nutrition totals of a meal.
func (s *SQLite) GetNutrition(ctx context.Context, mealID int64) (model.MealNutrition, error) {
	return getNutrition(ctx, s.db, mealID)
}

// CreateNutrition inserts the totals of an existing meal. A meal has at most
// one nutrition row.
func (s *SQLite) CreateNutrition(ctx context.Context, n model.MealNutrition) (model.MealNutrition, error) {
	var created model.MealNutrition
	err := s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		if _, err := getMeal(ctx, tx, n.MealID); err != nil {
			return err
		}

		query := `
			INSERT INTO meal_nutrition (meal_id, calories, protein_g, fat_g, carbohydrates_g, fiber_g, sugar_g, sodium_mg)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query,
			n.MealID, n.Calories, n.ProteinG, n.FatG, n.CarbohydrateG, n.FiberG, n.SugarG, n.SodiumMg)
		if err != nil {
			return fmt.Errorf("failed to insert nutrition: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		created = n
		created.ID = id
		record(change{table: model.TableMealNutrition, typ: model.EventInsert, newRow: created})
		return nil
	})
	if err != nil {
		return model.MealNutrition{}, err
	}
	return created, nil
}

// UpdateNutrition replaces the totals of a nutrition row.
func (s *SQLite) UpdateNutrition(ctx context.Context, id int64, totals model.NutritionTotals) (model.MealNutrition, error) {
	var updated model.MealNutrition
	err := s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		old, err := getNutritionByID(ctx, tx, id)
		if err != nil {
			return err
		}

		query := `
			UPDATE meal_nutrition
			SET calories = ?, protein_g = ?, fat_g = ?, carbohydrates_g = ?, fiber_g = ?, sugar_g = ?, sodium_mg = ?
			WHERE id = ?
		`
		if _, err := tx.ExecContext(ctx, query,
			totals.Calories, totals.ProteinG, totals.FatG, totals.CarbohydrateG,
			totals.FiberG, totals.SugarG, totals.SodiumMg, id,
		); err != nil {
			return fmt.Errorf("failed to update nutrition: %w", err)
		}

		updated = model.MealNutrition{ID: id, MealID: old.MealID, NutritionTotals: totals}
		record(change{table: model.TableMealNutrition, typ: model.EventUpdate, newRow: updated, oldRow: old})
		return nil
	})
	if err != nil {
		return model.MealNutrition{}, err
	}
	return updated, nil
}

// DeleteNutrition deletes a nutrition row.
func (s *SQLite) DeleteNutrition(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx, record func(change)) error {
		old, err := getNutritionByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM meal_nutrition WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete nutrition: %w", err)
		}
		record(change{table: model.TableMealNutrition, typ: model.EventDelete, oldRow: old})
		return nil
	})
}

// Daily grades

func getDailyGrade(ctx context.Context, q queryer, date string) (model.DailyGrade, error) {
	var d model.DailyGrade
	var average, grades string
	err := q.QueryRowContext(ctx,
		`SELECT id, date, average_grade, meal_count, grades FROM daily_grades WHERE date = ?`, date,
	).Scan(&d.ID, &d.Date, &average, &d.MealCount, &grades)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DailyGrade{}, fmt.Errorf("daily grade %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return model.DailyGrade{}, fmt.Errorf("failed to get daily grade: %w", err)
	}

	d.AverageGrade = grade.Letter(average)
	if err := json.Unmarshal([]byte(grades), &d.Grades); err != nil {
		return model.DailyGrade{}, fmt.Errorf("failed to decode daily grades: %w", err)
	}
	return d, nil
}

// GetDailyGrade returns the summary of one day.
func (s *SQLite) GetDailyGrade(ctx context.Context, date string) (model.DailyGrade, error) {
	return getDailyGrade(ctx, s.db, date)
}

// refreshDailyGrade recomputes the daily_grades row of date from the meals
// logged that day. The row is removed when no meals remain.
func (s *SQLite) refreshDailyGrade(ctx context.Context, tx *sql.Tx, record func(change), date string) error {
	if date == "" {
		return nil
	}

	meals, err := s.listMeals(ctx, tx, `WHERE substr(meal_date, 1, 10) = ? ORDER BY meal_date, id`, date)
	if err != nil {
		return err
	}
	letters := make([]grade.Letter, 0, len(meals))
	for _, m := range meals {
		letters = append(letters, m.MealGrade)
	}

	old, err := getDailyGrade(ctx, tx, date)
	existed := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	summary := grade.Daily(date, letters)
	if summary == nil {
		if !existed {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM daily_grades WHERE id = ?", old.ID); err != nil {
			return fmt.Errorf("failed to delete daily grade: %w", err)
		}
		record(change{table: model.TableDailyGrades, typ: model.EventDelete, oldRow: old})
		return nil
	}

	encoded, err := json.Marshal(summary.Grades)
	if err != nil {
		return fmt.Errorf("failed to encode daily grades: %w", err)
	}

	if !existed {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO daily_grades (date, average_grade, meal_count, grades) VALUES (?, ?, ?, ?)`,
			date, string(summary.AverageGrade), summary.MealCount, string(encoded))
		if err != nil {
			return fmt.Errorf("failed to insert daily grade: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		record(change{table: model.TableDailyGrades, typ: model.EventInsert, newRow: dailyRow(id, summary)})
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE daily_grades SET average_grade = ?, meal_count = ?, grades = ? WHERE id = ?`,
		string(summary.AverageGrade), summary.MealCount, string(encoded), old.ID,
	); err != nil {
		return fmt.Errorf("failed to update daily grade: %w", err)
	}
	record(change{table: model.TableDailyGrades, typ: model.EventUpdate, newRow: dailyRow(old.ID, summary), oldRow: old})
	return nil
}

func dailyRow(id int64, s *grade.DailySummary) model.DailyGrade {
	return model.DailyGrade{
		ID:           id,
		Date:         s.Date,
		AverageGrade: s.AverageGrade,
		MealCount:    s.MealCount,
		Grades:       s.Grades,
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
