package http

import (
	"time"

	"quiz-nexus-service/internal/domain"
)

// quizView is a quiz without its correct answers. Standard users and attempt screens only
// ever get this shape; admins get the full quiz for editing.
type quizView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	TimeLimit   int            `json:"time_limit"`
	Difficulty  string         `json:"difficulty"`
	Category    string         `json:"category"`
	CreatedAt   time.Time      `json:"created_at"`
	Published   bool           `json:"is_published"`
	Questions   []questionView `json:"questions"`
}

type questionView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

func newQuizView(q domain.Quiz) quizView {
	view := quizView{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		TimeLimit:   q.TimeLimit,
		Difficulty:  string(q.Difficulty),
		Category:    q.Category,
		CreatedAt:   q.CreatedAt,
		Published:   q.Published,
		Questions:   make([]questionView, len(q.Questions)),
	}
	for i, question := range q.Questions {
		view.Questions[i] = questionView{ID: question.ID, Prompt: question.Prompt, Options: question.Options}
	}
	return view
}

func quizFor(viewer domain.Viewer, q domain.Quiz) any {
	if viewer.IsAdmin() {
		return q
	}
	return newQuizView(q)
}

func quizzesFor(viewer domain.Viewer, quizzes []domain.Quiz) any {
	if viewer.IsAdmin() {
		return quizzes
	}
	views := make([]quizView, len(quizzes))
	for i, q := range quizzes {
		views[i] = newQuizView(q)
	}
	return views
}
