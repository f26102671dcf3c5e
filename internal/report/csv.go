package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"quiz-nexus-service/internal/domain"
)

var csvHeader = []string{
	"result_id", "quiz_id", "quiz_title", "user_id", "score", "total_questions",
	"percent", "time_spent_seconds", "completed_at",
}

// WriteCSV writes one row per result in the given order.
func WriteCSV(w io.Writer, results []domain.Result, titles map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.ID,
			r.QuizID,
			title(titles, r.QuizID),
			r.UserID,
			strconv.Itoa(r.Score),
			strconv.Itoa(r.TotalQuestions),
			strconv.FormatFloat(r.Percent(), 'f', 2, 64),
			strconv.Itoa(r.TimeSpent),
			r.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
