package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"quiz-nexus-service/internal/domain"
)

func sampleResults() []domain.Result {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return []domain.Result{
		{ID: "r1", QuizID: "maritime", UserID: "alice", Score: 5, TotalQuestions: 5, TimeSpent: 100, CompletedAt: at},
		{ID: "r2", QuizID: "maritime", UserID: "bob", Score: 3, TotalQuestions: 5, TimeSpent: 200, CompletedAt: at.Add(time.Hour)},
		{ID: "r3", QuizID: "supply", UserID: "bob", Score: 2, TotalQuestions: 3, TimeSpent: 60, CompletedAt: at.Add(2 * time.Hour)},
		{ID: "r4", QuizID: "maritime", UserID: "carol", Score: 4, TotalQuestions: 5, TimeSpent: 40, CompletedAt: at.Add(3 * time.Hour)},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults(), map[string]string{"maritime": "Maersk Maritime Knowledge"})

	if s.Attempts != 4 || s.UniqueUsers != 3 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if s.AverageTimeSpent != 100 {
		t.Fatalf("expected average time 100, got %v", s.AverageTimeSpent)
	}
	// 100, 60, 66.67, 80 -> two passes out of four.
	if s.PassRate != 50 {
		t.Fatalf("expected pass rate 50, got %v", s.PassRate)
	}
	want := map[string]int{"90-100": 1, "80-89": 1, "70-79": 0, "60-69": 2, "<60": 0}
	for _, b := range s.Distribution {
		if b.Count != want[b.Label] {
			t.Fatalf("bucket %s: expected %d, got %d", b.Label, want[b.Label], b.Count)
		}
	}

	if s.MostAttemptedQuiz == nil || s.MostAttemptedQuiz.QuizID != "maritime" || s.MostAttemptedQuiz.Attempts != 3 {
		t.Fatalf("unexpected most attempted %+v", s.MostAttemptedQuiz)
	}
	maritime := s.Quizzes[0]
	if maritime.Title != "Maersk Maritime Knowledge" || maritime.HighestPercent != 100 || maritime.LowestPercent != 60 ||
		maritime.MedianPercent != 80 || maritime.Passed != 2 {
		t.Fatalf("unexpected quiz stats %+v", maritime)
	}
	if s.Quizzes[1].Title != "Unknown Quiz" {
		t.Fatalf("expected fallback title, got %q", s.Quizzes[1].Title)
	}

	if s.Users[0].UserID != "alice" || s.Users[1].UserID != "carol" || s.Users[2].UserID != "bob" {
		t.Fatalf("users must be ordered by best percent, got %+v", s.Users)
	}
	bob := s.Users[2]
	if bob.Attempts != 2 || bob.TotalTimeSpent != 260 || bob.PassRate != 0 || !bob.LastCompletedAt.Equal(sampleResults()[2].CompletedAt) {
		t.Fatalf("unexpected bob stats %+v", bob)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, nil)
	if s.Attempts != 0 || s.MostAttemptedQuiz != nil || len(s.Distribution) != 5 {
		t.Fatalf("unexpected empty summary %+v", s)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResults()[2:3], map[string]string{"supply": "Supply Chain Fundamentals"}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "result_id" {
		t.Fatalf("unexpected rows %v", rows)
	}
	got := rows[1]
	if got[2] != "Supply Chain Fundamentals" || got[6] != "66.67" || got[7] != "60" || got[8] != "2024-06-01T11:00:00Z" {
		t.Fatalf("unexpected row %v", got)
	}
}
