package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nutriday/nutribot/internal/models"
)

// Opts holds configuration for persistent store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string (file path for SQLite,
// connection URL for PostgreSQL).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Anything that is
// not a PostgreSQL URL or key=value connection string is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanProfile reads one users row into a UserProfile, decoding the JSON
// list and flag columns.
func scanProfile(row rowScanner) (*models.UserProfile, error) {
	var p models.UserProfile
	var username sql.NullString
	var favJSON, disJSON, surveyJSON sql.NullString
	var firstInit, lastGen sql.NullTime

	err := row.Scan(
		&p.ChatID, &username, &p.Weight, &p.Height, &p.Age, &p.Sex,
		&p.ActivityFactor, &p.Goal, &favJSON, &disJSON,
		&firstInit, &p.GenerationsTotal, &p.GenerationsToday, &lastGen,
		&surveyJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Username = username.String
	if firstInit.Valid {
		p.FirstInit = &firstInit.Time
	}
	if lastGen.Valid {
		p.LastGeneration = &lastGen.Time
	}
	if err := decodeJSON(favJSON.String, &p.FavoriteFoods); err != nil {
		slog.Error("store scanProfile favorite foods decode failed", "error", err, "chatID", p.ChatID)
	}
	if err := decodeJSON(disJSON.String, &p.DislikedFoods); err != nil {
		slog.Error("store scanProfile disliked foods decode failed", "error", err, "chatID", p.ChatID)
	}
	if err := decodeJSON(surveyJSON.String, &p.SurveyCompleted); err != nil {
		slog.Error("store scanProfile survey flags decode failed", "error", err, "chatID", p.ChatID)
	}
	return &p, nil
}

// profileArgs flattens a profile into the column order used by the
// INSERT statements of both SQL backends.
func profileArgs(p *models.UserProfile) ([]interface{}, error) {
	favJSON, err := encodeJSON(p.FavoriteFoods)
	if err != nil {
		return nil, fmt.Errorf("encode favorite foods: %w", err)
	}
	disJSON, err := encodeJSON(p.DislikedFoods)
	if err != nil {
		return nil, fmt.Errorf("encode disliked foods: %w", err)
	}
	surveyJSON, err := encodeJSON(p.SurveyCompleted)
	if err != nil {
		return nil, fmt.Errorf("encode survey flags: %w", err)
	}
	return []interface{}{
		p.ChatID, nilIfEmpty(p.Username), p.Weight, p.Height, p.Age, p.Sex,
		p.ActivityFactor, p.Goal, favJSON, disJSON,
		nilIfNilTime(p.FirstInit), p.GenerationsTotal, p.GenerationsToday, nilIfNilTime(p.LastGeneration),
		surveyJSON, p.CreatedAt, p.UpdatedAt,
	}, nil
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, out interface{}) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}

// nilIfEmpty returns nil if s is empty, for nullable text columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNilTime returns nil if t is nil, for nullable timestamp columns.
func nilIfNilTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
