package domain

import (
	"encoding/json"
	"time"
)

// OptionsPerQuestion is the fixed number of options every question carries.
const OptionsPerQuestion = 4

// Unanswered marks a question the user never answered in Result.Answers.
const Unanswered = -1

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Viewer identifies who is looking at the data and with which privilege.
type Viewer struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (v Viewer) IsAdmin() bool {
	return v.Role == RoleAdmin
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Quiz is an authored, optionally published collection of questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
	TimeLimit   int        `json:"time_limit"` // seconds
	Difficulty  Difficulty `json:"difficulty"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	Published   bool       `json:"is_published"`
	CreatedBy   string     `json:"created_by"`
}

func (q Quiz) Key() string { return q.ID }

// TimeLimitDuration returns the time limit as a duration.
func (q Quiz) TimeLimitDuration() time.Duration {
	return time.Duration(q.TimeLimit) * time.Second
}

// Normalize fills in defaults for rows coming back from a store.
func (q Quiz) Normalize() Quiz {
	if q.Title == "" {
		q.Title = "Untitled Quiz"
	}
	if q.Category == "" {
		q.Category = "General"
	}
	if !q.Difficulty.Valid() {
		q.Difficulty = DifficultyEasy
	}
	if q.Questions == nil {
		q.Questions = []Question{}
	}
	if q.TimeLimit < 0 {
		q.TimeLimit = 0
	}
	return q
}

// QuizDraft holds the author-supplied fields of a new quiz.
type QuizDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
	TimeLimit   int        `json:"time_limit"`
	Difficulty  Difficulty `json:"difficulty"`
	Category    string     `json:"category"`
	Published   bool       `json:"is_published"`
}

// QuizPatch is a partial update; nil fields are left untouched.
type QuizPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Questions   *[]Question `json:"questions,omitempty"`
	TimeLimit   *int        `json:"time_limit,omitempty"`
	Difficulty  *Difficulty `json:"difficulty,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Published   *bool       `json:"is_published,omitempty"`
}

// Apply returns q with the patch fields applied.
func (p QuizPatch) Apply(q Quiz) Quiz {
	if p.Title != nil {
		q.Title = *p.Title
	}
	if p.Description != nil {
		q.Description = *p.Description
	}
	if p.Questions != nil {
		q.Questions = append([]Question(nil), (*p.Questions)...)
	}
	if p.TimeLimit != nil {
		q.TimeLimit = *p.TimeLimit
	}
	if p.Difficulty != nil {
		q.Difficulty = *p.Difficulty
	}
	if p.Category != nil {
		q.Category = *p.Category
	}
	if p.Published != nil {
		q.Published = *p.Published
	}
	return q
}

// Empty reports whether the patch changes nothing.
func (p QuizPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Questions == nil && p.TimeLimit == nil &&
		p.Difficulty == nil && p.Category == nil && p.Published == nil
}

// QuizFilter narrows ListQuizzes.
type QuizFilter struct {
	PublishedOnly bool
}

// Result is the persisted outcome of a completed attempt.
type Result struct {
	ID             string    `json:"id"`
	QuizID         string    `json:"quiz_id"`
	UserID         string    `json:"user_id"`
	Answers        []int     `json:"answers"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	TimeSpent      int       `json:"time_spent"` // seconds
	CompletedAt    time.Time `json:"completed_at"`
}

func (r Result) Key() string { return r.ID }

// Percent returns the score as a percentage of the question count.
func (r Result) Percent() float64 {
	if r.TotalQuestions <= 0 {
		return 0
	}
	return float64(r.Score) * 100 / float64(r.TotalQuestions)
}

func (r Result) Normalize() Result {
	if r.Answers == nil {
		r.Answers = []int{}
	}
	return r
}

// ResultSubmission is what a finished attempt sends to the store.
type ResultSubmission struct {
	QuizID         string `json:"quiz_id"`
	UserID         string `json:"user_id"`
	Answers        []int  `json:"answers"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
	TimeSpent      int    `json:"time_spent"`
}

// ResultFilter narrows ListResults. An empty UserID lists every user's results.
type ResultFilter struct {
	UserID string
}

// AttemptState is the durable progress of an in-flight attempt.
type AttemptState struct {
	Answers              map[int]int `json:"answers"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
	StartTime            int64       `json:"startTime"` // epoch ms
}

// Started returns StartTime as a time.Time.
func (s AttemptState) Started() time.Time {
	return time.UnixMilli(s.StartTime)
}

type Table string

const (
	TableQuizzes Table = "quizzes"
	TableResults Table = "quiz_results"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
	// ChangeSubscribed is emitted by a feed each time it (re)connects.
	ChangeSubscribed ChangeKind = "SUBSCRIBED"
	// ChangeResync replaces events a slow subscriber lost; every viewer must refetch.
	ChangeResync ChangeKind = "RESYNC"
)

// ChangeEvent is a single notification from a table change feed.
type ChangeEvent struct {
	Table Table           `json:"table"`
	Kind  ChangeKind      `json:"type"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}
