// Package sheets exports completed survey answers to a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/nutriday/nutribot/internal/models"
)

// appendRange targets the first free row of the survey tab.
const appendRange = "Survey1!A1"

// Answer codes are decoded into readable labels before export.
var featureLabels = map[string]string{
	"f1": "Saving recipes",
	"f2": "Shopping list",
	"f3": "Weekly menu",
	"f4": "Macronutrients",
	"f5": "Dish ratings",
	"f6": "Meal reminders",
	"f7": "Fitness trackers",
}

var formatLabels = map[string]string{
	"m1": "Text in chat",
	"m2": "PDF file",
	"m3": "Google Sheets",
	"m4": "Buttons in chat",
	"m5": "Interactive menu",
}

// rowAppender is the slice of the Sheets API the sink needs.
type rowAppender interface {
	Append(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error
}

// Sink appends one spreadsheet row per finished survey session.
type Sink struct {
	appender      rowAppender
	spreadsheetID string
	now           func() time.Time
}

// serviceAppender adapts the generated Sheets client to rowAppender.
type serviceAppender struct {
	svc *sheets.Service
}

func (a *serviceAppender) Append(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error {
	vr := &sheets.ValueRange{Values: values}
	_, err := a.svc.Spreadsheets.Values.Append(spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

// NewSink creates a sink writing to the given spreadsheet, authenticated with
// service account credentials JSON.
func NewSink(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (*Sink, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is empty")
	}
	svc, err := sheets.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Sink{
		appender:      &serviceAppender{svc: svc},
		spreadsheetID: spreadsheetID,
		now:           time.Now,
	}, nil
}

// AppendSurveyRow exports one answer row for the profile.
func (s *Sink) AppendSurveyRow(ctx context.Context, profile *models.UserProfile, answers []string) error {
	row := buildRow(profile, answers, s.now())
	if err := s.appender.Append(ctx, s.spreadsheetID, appendRange, [][]interface{}{row}); err != nil {
		return fmt.Errorf("failed to append survey row: %w", err)
	}
	slog.Info("Survey row exported", "chatID", profile.ChatID, "answers", len(answers))
	return nil
}

// buildRow lays out one spreadsheet row: timestamp, user identity and
// demographics, then the seven answers with multi-select codes decoded.
// Missing answers become empty cells so columns stay aligned.
func buildRow(profile *models.UserProfile, answers []string, now time.Time) []interface{} {
	row := []interface{}{
		now.Format(time.RFC3339),
		fmt.Sprintf("%d", profile.ChatID),
		profile.Username,
		sexLabel(profile.Sex),
		profile.Age,
	}
	for i := 0; i < len(Columns); i++ {
		var answer string
		if i < len(answers) {
			answer = answers[i]
		}
		switch Columns[i] {
		case "functions":
			answer = decodeCodes(answer, featureLabels, "No features selected")
		case "formats":
			answer = decodeCodes(answer, formatLabels, "No formats selected")
		}
		row = append(row, answer)
	}
	return row
}

// Columns is the fixed answer column order of the survey tab.
var Columns = []string{
	"rateCalories", "rateMenu", "rateRecipes", "ratePrefs",
	"functions", "formats", "difficulties",
}

func sexLabel(male bool) string {
	if male {
		return "male"
	}
	return "female"
}

// decodeCodes turns a comma-joined code list into readable labels. Unknown
// codes pass through unchanged.
func decodeCodes(answer string, labels map[string]string, empty string) string {
	if strings.TrimSpace(answer) == "" {
		return empty
	}
	parts := strings.Split(answer, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		code := strings.TrimSpace(p)
		if code == "" {
			continue
		}
		if label, ok := labels[code]; ok {
			out = append(out, label)
		} else {
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return empty
	}
	return strings.Join(out, ", ")
}
