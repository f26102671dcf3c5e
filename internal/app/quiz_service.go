package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"quiz-nexus-service/internal/domain"
)

// Store abstracts the remote persistence collaborator (in-memory, Postgres, etc).
type Store interface {
	QuizLoader
	ResultSubmitter
	Subscriber
	ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, authorID string, draft domain.QuizDraft) (domain.Quiz, error)
	UpdateQuiz(ctx context.Context, quizID string, patch domain.QuizPatch) (domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID string) error
	ListResults(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error)
}

// QuizLoader fetches a single quiz from a backing store.
type QuizLoader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string)
}

// ResultSubmitter persists finished attempts.
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, sub domain.ResultSubmission) (domain.Result, error)
}

// Subscriber opens a change feed for a table.
// The caller must invoke the returned cancel function to avoid leaks.
type Subscriber interface {
	Subscribe(ctx context.Context, table domain.Table) (<-chan domain.ChangeEvent, func(), error)
}

// QuizService contains the stateless quiz and result use cases.
type QuizService struct {
	store   Store
	quizzes QuizRepository
	log     *zap.Logger
}

// NewQuizService wires the service. quizzes may be nil when no cache is configured.
func NewQuizService(store Store, quizzes QuizRepository, log *zap.Logger) *QuizService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{store: store, quizzes: quizzes, log: log}
}

// ListQuizzes returns the quizzes the viewer may see, newest first.
func (s *QuizService) ListQuizzes(ctx context.Context, viewer domain.Viewer) ([]domain.Quiz, error) {
	quizzes, err := s.store.ListQuizzes(ctx, domain.QuizFilter{PublishedOnly: !viewer.IsAdmin()})
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// GetQuiz returns a quiz if it exists and is visible to the viewer.
func (s *QuizService) GetQuiz(ctx context.Context, viewer domain.Viewer, quizID string) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		err  error
	)
	if s.quizzes != nil {
		quiz, err = s.quizzes.GetQuiz(ctx, quizID)
	} else {
		quiz, err = s.store.GetQuiz(ctx, quizID)
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	if !QuizVisibility(viewer)(quiz) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// CreateQuiz validates and stores a new quiz authored by the viewer.
func (s *QuizService) CreateQuiz(ctx context.Context, viewer domain.Viewer, draft domain.QuizDraft) (domain.Quiz, error) {
	if !viewer.IsAdmin() {
		return domain.Quiz{}, domain.ErrForbidden
	}
	if err := draft.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := s.store.CreateQuiz(ctx, viewer.UserID, draft)
	if err != nil {
		s.log.Error("create quiz failed", zap.String("title", draft.Title), zap.Error(err))
		return domain.Quiz{}, err
	}
	s.log.Info("quiz created", zap.String("quiz_id", quiz.ID), zap.Bool("published", quiz.Published))
	return quiz, nil
}

// UpdateQuiz applies a partial update.
func (s *QuizService) UpdateQuiz(ctx context.Context, viewer domain.Viewer, quizID string, patch domain.QuizPatch) (domain.Quiz, error) {
	if !viewer.IsAdmin() {
		return domain.Quiz{}, domain.ErrForbidden
	}
	if patch.Empty() {
		return domain.Quiz{}, &domain.ValidationError{Field: "body", Reason: "no fields to update"}
	}
	if err := patch.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := s.store.UpdateQuiz(ctx, quizID, patch)
	if err != nil {
		s.log.Warn("update quiz failed", zap.String("quiz_id", quizID), zap.Error(err))
		return domain.Quiz{}, err
	}
	s.invalidate(ctx, quizID)
	s.log.Info("quiz updated", zap.String("quiz_id", quizID))
	return quiz, nil
}

// DeleteQuiz removes a quiz.
func (s *QuizService) DeleteQuiz(ctx context.Context, viewer domain.Viewer, quizID string) error {
	if !viewer.IsAdmin() {
		return domain.ErrForbidden
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		s.log.Warn("delete quiz failed", zap.String("quiz_id", quizID), zap.Error(err))
		return err
	}
	s.invalidate(ctx, quizID)
	s.log.Info("quiz deleted", zap.String("quiz_id", quizID))
	return nil
}

// ListResults returns the viewer's own results, or every result when all is set (admin only).
func (s *QuizService) ListResults(ctx context.Context, viewer domain.Viewer, all bool) ([]domain.Result, error) {
	filter := domain.ResultFilter{UserID: viewer.UserID}
	if all {
		if !viewer.IsAdmin() {
			return nil, domain.ErrForbidden
		}
		filter.UserID = ""
	}
	results, err := s.store.ListResults(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// QuizTitles maps quiz ids to titles for every quiz the viewer can see.
func (s *QuizService) QuizTitles(ctx context.Context, viewer domain.Viewer) (map[string]string, error) {
	quizzes, err := s.ListQuizzes(ctx, viewer)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(quizzes))
	for _, q := range quizzes {
		titles[q.ID] = q.Title
	}
	return titles, nil
}

func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.quizzes != nil {
		s.quizzes.Invalidate(ctx, quizID)
	}
}

// WatchQuizCache drops cached quizzes whenever the store's feed reports a change to them,
// so writes made through other instances are picked up. A RESYNC drops every quiz the store
// knows of. It blocks until ctx is done.
func WatchQuizCache(ctx context.Context, store Store, cache QuizRepository, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	events, cancel, err := store.Subscribe(ctx, domain.TableQuizzes)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == domain.ChangeResync {
				invalidateAll(ctx, store, cache, log)
				continue
			}
			if ev.Kind != domain.ChangeUpdate && ev.Kind != domain.ChangeDelete {
				continue
			}
			change, err := DecodeChange[domain.Quiz](ev, nil)
			if err != nil || change.Key() == "" {
				log.Warn("undecodable quiz change", zap.Error(err))
				continue
			}
			cache.Invalidate(ctx, change.Key())
		}
	}
}

func invalidateAll(ctx context.Context, store Store, cache QuizRepository, log *zap.Logger) {
	quizzes, err := store.ListQuizzes(ctx, domain.QuizFilter{})
	if err != nil {
		log.Warn("quiz cache resync failed", zap.Error(err))
		return
	}
	for _, q := range quizzes {
		cache.Invalidate(ctx, q.ID)
	}
}
