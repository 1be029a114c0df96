// Package store provides storage backends for NutriBot.
//
// This file implements the SQLite-backed profile store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/nutriday/nutribot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for created database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists profiles in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path; its
// directory is created if missing, and migrations run on open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const sqliteSelectColumns = `chat_id, username, weight, height, age, sex,
	activity_factor, goal, favorite_foods, disliked_foods,
	first_init, generations_total, generations_today, last_generation,
	survey_completed, created_at, updated_at`

func (s *SQLiteStore) FindByChatID(ctx context.Context, chatID int64) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM users WHERE chat_id = ?`, chatID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore FindByChatID not found", "chatID", chatID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindByChatID failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query profile %d: %w", chatID, err)
	}
	return p, nil
}

func (s *SQLiteStore) CreateOrUpdate(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error) {
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
	slog.Debug("SQLiteStore CreateOrUpdate succeeded", "chatID", chatID)
	return p, nil
}

func (s *SQLiteStore) SetFields(ctx context.Context, chatID int64, update models.ProfileUpdate) (*models.UserProfile, error) {
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

func (s *SQLiteStore) AddToList(ctx context.Context, chatID int64, kind models.FoodKind, items []string) (*models.UserProfile, error) {
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
	slog.Debug("SQLiteStore AddToList succeeded", "chatID", chatID, "kind", kind, "count", len(items))
	return p, nil
}

func (s *SQLiteStore) RemoveFromList(ctx context.Context, chatID int64, kind models.FoodKind, item string) (*models.UserProfile, error) {
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

func (s *SQLiteStore) SetSurveyCompleted(ctx context.Context, chatID int64, surveyID string, completed bool) error {
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

func (s *SQLiteStore) SurveyCandidates(ctx context.Context, surveyID string) ([]*models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM users WHERE first_init IS NOT NULL`)
	if err != nil {
		slog.Error("SQLiteStore SurveyCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to query survey candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			slog.Error("SQLiteStore SurveyCandidates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		// Completion flags live in a JSON column; filter here.
		if !p.SurveyDone(surveyID) {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}
	slog.Debug("SQLiteStore SurveyCandidates succeeded", "count", len(out))
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context, page, limit int) ([]*models.UserProfile, int, error) {
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
		`SELECT `+sqliteSelectColumns+` FROM users ORDER BY chat_id LIMIT ? OFFSET ?`,
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

func (s *SQLiteStore) Delete(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE chat_id = ?`, chatID)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to delete profile %d: %w", chatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func (s *SQLiteStore) save(ctx context.Context, p *models.UserProfile) error {
	args, err := profileArgs(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (
			chat_id, username, weight, height, age, sex,
			activity_factor, goal, favorite_foods, disliked_foods,
			first_init, generations_total, generations_today, last_generation,
			survey_completed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		slog.Error("SQLiteStore save failed", "error", err, "chatID", p.ChatID)
		return fmt.Errorf("failed to save profile %d: %w", p.ChatID, err)
	}
	return nil
}
