package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
)

// Store is an in-memory implementation of app.Store with an in-process change feed.
type Store struct {
	now  func() time.Time
	feed *app.Feed

	mu      sync.RWMutex
	quizzes []domain.Quiz // newest first
	results []domain.Result
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{now: now, feed: app.NewFeed()}
}

// Seed inserts quizzes as-is, assigning ids and timestamps where missing. No events are published.
func (s *Store) Seed(quizzes ...domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quizzes {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = s.now()
		}
		s.quizzes = append([]domain.Quiz{cloneQuiz(q.Normalize())}, s.quizzes...)
	}
}

func (s *Store) ListQuizzes(_ context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		if filter.PublishedOnly && !q.Published {
			continue
		}
		out = append(out, cloneQuiz(q))
	}
	return out, nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.quizIndex(quizID); idx != -1 {
		return cloneQuiz(s.quizzes[idx]), nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *Store) CreateQuiz(_ context.Context, authorID string, draft domain.QuizDraft) (domain.Quiz, error) {
	if err := draft.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	quiz := draft.Quiz(authorID)
	quiz.ID = uuid.NewString()
	quiz.CreatedAt = s.now()
	quiz = cloneQuiz(quiz.Normalize())

	ev, err := changeEvent(domain.TableQuizzes, domain.ChangeInsert, quiz, nil)
	if err != nil {
		return domain.Quiz{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes = append([]domain.Quiz{quiz}, s.quizzes...)
	s.feed.Publish(ev)
	return cloneQuiz(quiz), nil
}

func (s *Store) UpdateQuiz(_ context.Context, quizID string, patch domain.QuizPatch) (domain.Quiz, error) {
	if err := patch.Validate(); err != nil {
		return domain.Quiz{}, err
	}

	// Events go out under the lock so subscribers see writes in commit order.
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.quizIndex(quizID)
	if idx == -1 {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	old := s.quizzes[idx]
	updated := cloneQuiz(patch.Apply(old).Normalize())
	ev, err := changeEvent(domain.TableQuizzes, domain.ChangeUpdate, updated, old)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.quizzes[idx] = updated
	s.feed.Publish(ev)
	return cloneQuiz(updated), nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.quizIndex(quizID)
	if idx == -1 {
		return domain.ErrQuizNotFound
	}
	old := s.quizzes[idx]
	ev, err := changeEvent(domain.TableQuizzes, domain.ChangeDelete, nil, old)
	if err != nil {
		return err
	}
	s.quizzes = append(s.quizzes[:idx:idx], s.quizzes[idx+1:]...)
	s.feed.Publish(ev)
	return nil
}

func (s *Store) SubmitResult(_ context.Context, sub domain.ResultSubmission) (domain.Result, error) {
	if err := sub.Validate(); err != nil {
		return domain.Result{}, err
	}
	result := domain.Result{
		ID:             uuid.NewString(),
		QuizID:         sub.QuizID,
		UserID:         sub.UserID,
		Answers:        append([]int{}, sub.Answers...),
		Score:          sub.Score,
		TotalQuestions: sub.TotalQuestions,
		TimeSpent:      sub.TimeSpent,
		CompletedAt:    s.now(),
	}

	ev, err := changeEvent(domain.TableResults, domain.ChangeInsert, result, nil)
	if err != nil {
		return domain.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append([]domain.Result{result}, s.results...)
	s.feed.Publish(ev)
	return result, nil
}

func (s *Store) ListResults(_ context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0, len(s.results))
	for _, r := range s.results {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		r.Answers = append([]int{}, r.Answers...)
		out = append(out, r)
	}
	return out, nil
}

// Subscribe returns a channel that receives change events for a table.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Store) Subscribe(ctx context.Context, table domain.Table) (<-chan domain.ChangeEvent, func(), error) {
	return s.feed.Subscribe(ctx, table)
}

// Close ends every open subscription.
func (s *Store) Close() {
	s.feed.Close()
}

func (s *Store) quizIndex(quizID string) int {
	for i := range s.quizzes {
		if s.quizzes[i].ID == quizID {
			return i
		}
	}
	return -1
}

func changeEvent(table domain.Table, kind domain.ChangeKind, newRow, oldRow any) (domain.ChangeEvent, error) {
	ev := domain.ChangeEvent{Table: table, Kind: kind}
	var err error
	if newRow != nil {
		if ev.New, err = json.Marshal(newRow); err != nil {
			return domain.ChangeEvent{}, fmt.Errorf("encode %s row: %w", table, err)
		}
	}
	if oldRow != nil {
		if ev.Old, err = json.Marshal(oldRow); err != nil {
			return domain.ChangeEvent{}, fmt.Errorf("encode %s row: %w", table, err)
		}
	}
	return ev, nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		questions[i] = question
	}
	q.Questions = questions
	return q
}
