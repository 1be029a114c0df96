package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nutriday/nutribot/internal/models"
)

type fakeAppender struct {
	spreadsheetID string
	writeRange    string
	values        [][]interface{}
	err           error
}

func (f *fakeAppender) Append(_ context.Context, spreadsheetID, writeRange string, values [][]interface{}) error {
	f.spreadsheetID = spreadsheetID
	f.writeRange = writeRange
	f.values = values
	return f.err
}

func testSink(appender *fakeAppender) *Sink {
	return &Sink{
		appender:      appender,
		spreadsheetID: "sheet-1",
		now:           func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestAppendSurveyRow(t *testing.T) {
	appender := &fakeAppender{}
	sink := testSink(appender)
	profile := &models.UserProfile{ChatID: 42, Username: "alice", Sex: true, Age: 30}
	answers := []string{"5", "4", "3", "5", "f1, f3", "m2", "hard to plan ahead"}

	if err := sink.AppendSurveyRow(context.Background(), profile, answers); err != nil {
		t.Fatalf("AppendSurveyRow failed: %v", err)
	}

	if appender.spreadsheetID != "sheet-1" || appender.writeRange != appendRange {
		t.Errorf("append target = %q %q", appender.spreadsheetID, appender.writeRange)
	}
	if len(appender.values) != 1 {
		t.Fatalf("values rows = %d, want 1", len(appender.values))
	}
	row := appender.values[0]
	if len(row) != 5+len(Columns) {
		t.Fatalf("row length = %d, want %d", len(row), 5+len(Columns))
	}
	if row[1] != "42" || row[2] != "alice" {
		t.Errorf("identity cells = %v %v", row[1], row[2])
	}
	if row[3] != "male" || row[4] != 30 {
		t.Errorf("profile cells = %v %v", row[3], row[4])
	}
	if row[9] != "Saving recipes, Weekly menu" {
		t.Errorf("functions cell = %v", row[9])
	}
	if row[10] != "PDF file" {
		t.Errorf("formats cell = %v", row[10])
	}
	if row[11] != "hard to plan ahead" {
		t.Errorf("difficulties cell = %v", row[11])
	}
}

func TestAppendSurveyRowError(t *testing.T) {
	appender := &fakeAppender{err: errors.New("permission denied")}
	sink := testSink(appender)

	err := sink.AppendSurveyRow(context.Background(), &models.UserProfile{ChatID: 1}, nil)
	if err == nil {
		t.Fatal("expected append error to propagate")
	}
}

func TestBuildRowEmptyMultiSelect(t *testing.T) {
	profile := &models.UserProfile{ChatID: 7}
	answers := []string{"1", "1", "1", "1", "", "", "-"}
	row := buildRow(profile, answers, time.Now())

	if row[9] != "No features selected" {
		t.Errorf("functions cell = %v", row[9])
	}
	if row[10] != "No formats selected" {
		t.Errorf("formats cell = %v", row[10])
	}
}

func TestBuildRowPadsMissingAnswers(t *testing.T) {
	profile := &models.UserProfile{ChatID: 7}
	// Timed-out session: only two answers collected.
	row := buildRow(profile, []string{"4", "2"}, time.Now())

	if len(row) != 5+len(Columns) {
		t.Fatalf("row length = %d, want %d", len(row), 5+len(Columns))
	}
	if row[5] != "4" || row[6] != "2" {
		t.Errorf("answer cells = %v %v", row[5], row[6])
	}
	if row[7] != "" || row[8] != "" {
		t.Errorf("missing rating cells should be empty, got %v %v", row[7], row[8])
	}
	if row[11] != "" {
		t.Errorf("missing open cell should be empty, got %v", row[11])
	}
}

func TestDecodeCodesUnknownPassThrough(t *testing.T) {
	got := decodeCodes("f1, f9", featureLabels, "none")
	if got != "Saving recipes, f9" {
		t.Errorf("decoded = %q", got)
	}
}
