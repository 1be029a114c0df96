// Package store provides storage backends for NutriBot.
//
// This file implements the PostgreSQL-backed profile store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/nutriday/nutribot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store from a connection URL and
// runs migrations on open.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

const postgresSelectColumns = `chat_id, username, weight, height, age, sex,
	activity_factor, goal, favorite_foods, disliked_foods,
	first_init, generations_total, generations_today, last_generation,
	survey_completed, created_at, updated_at`

func (s *PostgresStore) FindByChatID(ctx context.Context, chatID int64) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postgresSelectColumns+` FROM users WHERE chat_id = $1`, chatID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore FindByChatID not found", "chatID", chatID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindByChatID failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query profile %d: %w", chatID, err)
	}
	return p, nil
}

func (s *PostgresStore) CreateOrUpdate(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error) {
	p, err := s.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if p == nil {
		p = &models.UserProfile{ChatID: chatID, CreatedAt: now}
	}
	applyUpdate(p, update, now)
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore CreateOrUpdate succeeded", "chatID", chatID)
	return p, nil
}

func (s *PostgresStore) SetFields(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error) {
	p, err := s.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, models.ErrProfileNotFound
	}
	applyUpdate(p, update, time.Now())
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) AddToList(ctx context.Context, chatID int64, kind models.FoodKind, items []string) (*models.UserProfile, error) {
	p, err := s.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, models.ErrProfileNotFound
	}
	list := foodList(p, kind)
	*list = unionList(*list, items)
	p.UpdatedAt = time.Now()
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore AddToList succeeded", "chatID", chatID, "kind", kind, "count", len(items))
	return p, nil
}

func (s *PostgresStore) RemoveFromList(ctx context.Context, chatID int64, kind models.FoodKind, item string) (*models.UserProfile, error) {
	p, err := s.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, models.ErrProfileNotFound
	}
	list := foodList(p, kind)
	*list = removeItem(*list, item)
	p.UpdatedAt = time.Now()
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) SetSurveyCompleted(ctx context.Context, chatID int64, surveyID string, completed bool) error {
	p, err := s.FindByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	if p == nil {
		return models.ErrProfileNotFound
	}
	if p.SurveyCompleted == nil {
		p.SurveyCompleted = make(map[string]bool)
	}
	p.SurveyCompleted[surveyID] = completed
	p.UpdatedAt = time.Now()
	return s.save(ctx, p)
}

func (s *PostgresStore) SurveyCandidates(ctx context.Context, surveyID string) ([]*models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postgresSelectColumns+` FROM users WHERE first_init IS NOT NULL`)
	if err != nil {
		slog.Error("PostgresStore SurveyCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to query survey candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			slog.Error("PostgresStore SurveyCandidates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		if !p.SurveyDone(surveyID) {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}
	slog.Debug("PostgresStore SurveyCandidates succeeded", "count", len(out))
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, page, limit int) ([]*models.UserProfile, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postgresSelectColumns+` FROM users ORDER BY chat_id LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan profile row: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE chat_id = $1`, chatID)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to delete profile %d: %w", chatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

func (s *PostgresStore) save(ctx context.Context, p *models.UserProfile) error {
	args, err := profileArgs(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (
			chat_id, username, weight, height, age, sex,
			activity_factor, goal, favorite_foods, disliked_foods,
			first_init, generations_total, generations_today, last_generation,
			survey_completed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (chat_id) DO UPDATE SET
			username = EXCLUDED.username,
			weight = EXCLUDED.weight,
			height = EXCLUDED.height,
			age = EXCLUDED.age,
			sex = EXCLUDED.sex,
			activity_factor = EXCLUDED.activity_factor,
			goal = EXCLUDED.goal,
			favorite_foods = EXCLUDED.favorite_foods,
			disliked_foods = EXCLUDED.disliked_foods,
			first_init = EXCLUDED.first_init,
			generations_total = EXCLUDED.generations_total,
			generations_today = EXCLUDED.generations_today,
			last_generation = EXCLUDED.last_generation,
			survey_completed = EXCLUDED.survey_completed,
			updated_at = EXCLUDED.updated_at`, args...)
	if err != nil {
		slog.Error("PostgresStore save failed", "error", err, "chatID", p.ChatID)
		return fmt.Errorf("failed to save profile %d: %w", p.ChatID, err)
	}
	return nil
}
