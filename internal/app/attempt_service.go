package app

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/metrics"
)

// AttemptService opens attempt sessions for viewers.
type AttemptService struct {
	quizzes QuizLoader
	results ResultSubmitter
	states  AttemptStore
	log     *zap.Logger
	now     func() time.Time
}

// NewAttemptService wires the service. states may be nil to keep attempts in memory only.
func NewAttemptService(quizzes QuizLoader, results ResultSubmitter, states AttemptStore, log *zap.Logger) *AttemptService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptService{quizzes: quizzes, results: results, states: states, log: log, now: time.Now}
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(quizzes QuizLoader, results ResultSubmitter, states AttemptStore, now func() time.Time) *AttemptService {
	s := NewAttemptService(quizzes, results, states, nil)
	s.now = now
	return s
}

// Open starts or resumes the viewer's attempt at a quiz. An attempt whose time already
// ran out is finished before Open returns; a failed submission there is logged and left
// for the tick loop to retry.
func (s *AttemptService) Open(ctx context.Context, viewer domain.Viewer, quizID string) (*AttemptSession, error) {
	if viewer.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	// Users cannot attempt unknown or unpublished quizzes.
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !QuizVisibility(viewer)(quiz) {
		return nil, domain.ErrQuizNotFound
	}

	session, err := StartAttempt(ctx, quiz, viewer.UserID, s.results, s.states,
		WithAttemptClock(s.now),
		WithAttemptLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	metrics.AttemptsStarted.WithLabelValues(strconv.FormatBool(session.Resumed())).Inc()

	if _, err := session.Tick(ctx); err != nil {
		s.log.Warn("expired attempt could not be submitted", zap.String("quiz_id", quizID), zap.Error(err))
	}
	return session, nil
}
