package domain

import (
	"fmt"
	"strings"
)

// Validate checks the fields required to create a quiz.
func (d QuizDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(d.Category) == "" {
		return invalid("category", "is required")
	}
	if d.TimeLimit <= 0 {
		return invalid("time_limit", "must be positive")
	}
	if d.Difficulty != "" && !d.Difficulty.Valid() {
		return invalid("difficulty", "must be Easy, Medium or Hard")
	}
	return ValidateQuestions(d.Questions)
}

// Quiz turns the draft into an unsaved quiz owned by authorID.
func (d QuizDraft) Quiz(authorID string) Quiz {
	questions := d.Questions
	if questions == nil {
		questions = []Question{}
	}
	difficulty := d.Difficulty
	if difficulty == "" {
		difficulty = DifficultyEasy
	}
	return Quiz{
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Questions:   questions,
		TimeLimit:   d.TimeLimit,
		Difficulty:  difficulty,
		Category:    strings.TrimSpace(d.Category),
		Published:   d.Published,
		CreatedBy:   authorID,
	}
}

// Validate checks the fields a patch sets.
func (p QuizPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return invalid("title", "must not be empty")
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return invalid("category", "must not be empty")
	}
	if p.TimeLimit != nil && *p.TimeLimit <= 0 {
		return invalid("time_limit", "must be positive")
	}
	if p.Difficulty != nil && !p.Difficulty.Valid() {
		return invalid("difficulty", "must be Easy, Medium or Hard")
	}
	if p.Questions != nil {
		return ValidateQuestions(*p.Questions)
	}
	return nil
}

// ValidateQuestions enforces prompt, option count and correct-answer bounds.
func ValidateQuestions(questions []Question) error {
	for i, q := range questions {
		field := fmt.Sprintf("questions[%d]", i)
		if strings.TrimSpace(q.Prompt) == "" {
			return invalid(field+".question", "is required")
		}
		if len(q.Options) != OptionsPerQuestion {
			return invalid(field+".options", fmt.Sprintf("must have %d options", OptionsPerQuestion))
		}
		for j, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return invalid(fmt.Sprintf("%s.options[%d]", field, j), "is required")
			}
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return invalid(field+".correctAnswer", "out of range")
		}
	}
	return nil
}

// Validate checks a result submission before it is stored.
func (s ResultSubmission) Validate() error {
	switch {
	case s.QuizID == "":
		return invalid("quiz_id", "is required")
	case s.UserID == "":
		return invalid("user_id", "is required")
	case s.TotalQuestions < 0 || len(s.Answers) != s.TotalQuestions:
		return invalid("answers", "must hold one entry per question")
	case s.Score < 0 || s.Score > s.TotalQuestions:
		return invalid("score", "out of range")
	case s.TimeSpent < 0:
		return invalid("time_spent", "must not be negative")
	}
	return nil
}
