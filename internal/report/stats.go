package report

import (
	"sort"
	"time"

	"quiz-nexus-service/internal/domain"
)

// PassThreshold is the percentage at which an attempt counts as passed.
const PassThreshold = 70.0

// Bucket labels, highest first.
var bucketLabels = []string{"90-100", "80-89", "70-79", "60-69", "<60"}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type QuizCount struct {
	QuizID   string `json:"quizId"`
	Title    string `json:"title"`
	Attempts int    `json:"attempts"`
}

type UserStats struct {
	UserID          string    `json:"userId"`
	Attempts        int       `json:"attempts"`
	AveragePercent  float64   `json:"averagePercent"`
	BestPercent     float64   `json:"bestPercent"`
	PassRate        float64   `json:"passRate"`
	TotalTimeSpent  int       `json:"totalTimeSpent"`
	LastCompletedAt time.Time `json:"lastCompletedAt"`
}

type QuizStats struct {
	QuizID         string  `json:"quizId"`
	Title          string  `json:"title"`
	Attempts       int     `json:"attempts"`
	AveragePercent float64 `json:"averagePercent"`
	HighestPercent float64 `json:"highestPercent"`
	LowestPercent  float64 `json:"lowestPercent"`
	MedianPercent  float64 `json:"medianPercent"`
	Passed         int     `json:"passed"`
}

// Summary aggregates a set of results for the analytics views.
type Summary struct {
	Attempts          int         `json:"attempts"`
	AveragePercent    float64     `json:"averagePercent"`
	AverageTimeSpent  float64     `json:"averageTimeSpent"`
	UniqueUsers       int         `json:"uniqueUsers"`
	PassRate          float64     `json:"passRate"`
	MostAttemptedQuiz *QuizCount  `json:"mostAttemptedQuiz,omitempty"`
	Distribution      []Bucket    `json:"distribution"`
	Users             []UserStats `json:"users"`
	Quizzes           []QuizStats `json:"quizzes"`
}

// Summarize computes the summary. titles maps quiz ids to titles; unknown quizzes are
// labelled "Unknown Quiz".
func Summarize(results []domain.Result, titles map[string]string) Summary {
	summary := Summary{
		Distribution: make([]Bucket, len(bucketLabels)),
		Users:        []UserStats{},
		Quizzes:      []QuizStats{},
	}
	for i, label := range bucketLabels {
		summary.Distribution[i] = Bucket{Label: label}
	}
	if len(results) == 0 {
		return summary
	}

	var (
		percentSum float64
		timeSum    int
		passed     int
		users      = map[string]*UserStats{}
		userPassed = map[string]int{}
		quizScores = map[string][]float64{}
	)
	for _, r := range results {
		p := r.Percent()
		percentSum += p
		timeSum += r.TimeSpent
		if p >= PassThreshold {
			passed++
			userPassed[r.UserID]++
		}
		summary.Distribution[bucketIndex(p)].Count++

		u, ok := users[r.UserID]
		if !ok {
			u = &UserStats{UserID: r.UserID}
			users[r.UserID] = u
		}
		u.Attempts++
		u.AveragePercent += p
		u.TotalTimeSpent += r.TimeSpent
		if p > u.BestPercent {
			u.BestPercent = p
		}
		if r.CompletedAt.After(u.LastCompletedAt) {
			u.LastCompletedAt = r.CompletedAt
		}

		quizScores[r.QuizID] = append(quizScores[r.QuizID], p)
	}

	n := float64(len(results))
	summary.Attempts = len(results)
	summary.AveragePercent = percentSum / n
	summary.AverageTimeSpent = float64(timeSum) / n
	summary.UniqueUsers = len(users)
	summary.PassRate = float64(passed) / n * 100

	for id, u := range users {
		u.PassRate = float64(userPassed[id]) / float64(u.Attempts) * 100
		u.AveragePercent /= float64(u.Attempts)
		summary.Users = append(summary.Users, *u)
	}
	sort.Slice(summary.Users, func(i, j int) bool {
		a, b := summary.Users[i], summary.Users[j]
		if a.BestPercent != b.BestPercent {
			return a.BestPercent > b.BestPercent
		}
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.UserID < b.UserID
	})

	for id, scores := range quizScores {
		summary.Quizzes = append(summary.Quizzes, quizStats(id, title(titles, id), scores))
	}
	sort.Slice(summary.Quizzes, func(i, j int) bool {
		a, b := summary.Quizzes[i], summary.Quizzes[j]
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.QuizID < b.QuizID
	})
	top := summary.Quizzes[0]
	summary.MostAttemptedQuiz = &QuizCount{QuizID: top.QuizID, Title: top.Title, Attempts: top.Attempts}
	return summary
}

func quizStats(id, title string, scores []float64) QuizStats {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	stats := QuizStats{
		QuizID:         id,
		Title:          title,
		Attempts:       len(sorted),
		LowestPercent:  sorted[0],
		HighestPercent: sorted[len(sorted)-1],
	}
	var sum float64
	for _, p := range sorted {
		sum += p
		if p >= PassThreshold {
			stats.Passed++
		}
	}
	stats.AveragePercent = sum / float64(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		stats.MedianPercent = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		stats.MedianPercent = sorted[mid]
	}
	return stats
}

func bucketIndex(percent float64) int {
	switch {
	case percent >= 90:
		return 0
	case percent >= 80:
		return 1
	case percent >= 70:
		return 2
	case percent >= 60:
		return 3
	}
	return 4
}

func title(titles map[string]string, quizID string) string {
	if t, ok := titles[quizID]; ok && t != "" {
		return t
	}
	return "Unknown Quiz"
}
