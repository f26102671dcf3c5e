package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/metrics"
)

// AttemptStore keeps the durable progress of in-flight attempts.
type AttemptStore interface {
	Load(ctx context.Context, key AttemptKey) (domain.AttemptState, bool, error)
	Save(ctx context.Context, key AttemptKey, state domain.AttemptState) error
	Delete(ctx context.Context, key AttemptKey) error
}

// AttemptKey identifies an attempt's durable state.
type AttemptKey struct {
	QuizID string
	UserID string
}

func (k AttemptKey) String() string {
	return k.QuizID + ":" + k.UserID
}

type AttemptPhase string

const (
	AttemptIdle      AttemptPhase = "idle"
	AttemptActive    AttemptPhase = "active"
	AttemptFinishing AttemptPhase = "finishing"
	AttemptCompleted AttemptPhase = "completed"
)

// AttemptSnapshot is a copy of the attempt state for rendering.
type AttemptSnapshot struct {
	QuizID               string         `json:"quizId"`
	Phase                AttemptPhase   `json:"phase"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	TotalQuestions       int            `json:"totalQuestions"`
	Answers              map[int]int    `json:"answers"`
	Remaining            int            `json:"remaining"` // seconds
	StartedAt            time.Time      `json:"startedAt"`
	Persistent           bool           `json:"persistent"`
	Result               *domain.Result `json:"result,omitempty"`
}

// AttemptSession drives one quiz attempt from start to a single submitted Result.
type AttemptSession struct {
	quiz      domain.Quiz
	key       AttemptKey
	submitter ResultSubmitter
	store     AttemptStore
	log       *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	phase      AttemptPhase
	answers    map[int]int
	current    int
	startTime  time.Time
	result     *domain.Result
	persistent bool
	resumed    bool
}

type AttemptOption func(*AttemptSession)

// WithAttemptClock allows deterministic timestamps in tests.
func WithAttemptClock(now func() time.Time) AttemptOption {
	return func(s *AttemptSession) { s.now = now }
}

func WithAttemptLogger(log *zap.Logger) AttemptOption {
	return func(s *AttemptSession) { s.log = log }
}

// StartAttempt resumes the durable attempt for (quiz, user) if one exists, otherwise
// starts a fresh one. store may be nil, in which case the attempt lives in memory only.
func StartAttempt(ctx context.Context, quiz domain.Quiz, userID string, submitter ResultSubmitter, store AttemptStore, opts ...AttemptOption) (*AttemptSession, error) {
	if quiz.ID == "" || len(quiz.Questions) == 0 || quiz.TimeLimit <= 0 {
		return nil, domain.ErrInvalidQuiz
	}
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	s := &AttemptSession{
		quiz:       quiz,
		key:        AttemptKey{QuizID: quiz.ID, UserID: userID},
		submitter:  submitter,
		store:      store,
		log:        zap.NewNop(),
		now:        time.Now,
		phase:      AttemptIdle,
		persistent: store != nil,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("quiz_id", quiz.ID), zap.String("user_id", userID))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persistent {
		state, ok, err := s.store.Load(ctx, s.key)
		switch {
		case err != nil:
			s.persistent = false
			s.log.Warn("attempt state unavailable; continuing in memory", zap.Error(err))
		case ok:
			s.restoreLocked(state)
		}
	}
	if !s.resumed {
		s.resetLocked()
		s.persistLocked(ctx)
	}
	s.phase = AttemptActive
	return s, nil
}

func (s *AttemptSession) restoreLocked(state domain.AttemptState) {
	last := len(s.quiz.Questions) - 1
	s.answers = make(map[int]int, len(state.Answers))
	for q, opt := range state.Answers {
		if q >= 0 && q <= last {
			s.answers[q] = opt
		}
	}
	s.current = state.CurrentQuestionIndex
	if s.current < 0 {
		s.current = 0
	}
	if s.current > last {
		s.current = last
	}
	s.startTime = state.Started()
	s.resumed = true
}

func (s *AttemptSession) resetLocked() {
	s.answers = make(map[int]int)
	s.current = 0
	s.startTime = s.now()
	s.result = nil
}

// Resumed reports whether the session picked up persisted progress.
func (s *AttemptSession) Resumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed
}

func (s *AttemptSession) Quiz() domain.Quiz {
	return s.quiz
}

// SelectAnswer records the chosen option for a question.
func (s *AttemptSession) SelectAnswer(ctx context.Context, questionIndex, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != AttemptActive {
		return domain.ErrAttemptClosed
	}
	if questionIndex < 0 || questionIndex >= len(s.quiz.Questions) {
		return &domain.ValidationError{Field: "questionIndex", Reason: "out of range"}
	}
	s.answers[questionIndex] = optionIndex
	s.persistLocked(ctx)
	return nil
}

// Advance moves to the next question, or finishes the attempt on the last one.
// The returned result is non-nil only when the call finished the attempt.
func (s *AttemptSession) Advance(ctx context.Context) (*domain.Result, error) {
	s.mu.Lock()
	if s.phase != AttemptActive {
		s.mu.Unlock()
		return nil, domain.ErrAttemptClosed
	}
	if s.current < len(s.quiz.Questions)-1 {
		s.current++
		s.persistLocked(ctx)
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()

	result, err := s.Finish(ctx)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Finish scores the attempt and submits it exactly once. While a submission is in flight
// further calls return ErrFinishInProgress; after success they return the same Result.
func (s *AttemptSession) Finish(ctx context.Context) (domain.Result, error) {
	return s.finish(ctx, false)
}

func (s *AttemptSession) finish(ctx context.Context, onlyIfExpired bool) (domain.Result, error) {
	s.mu.Lock()
	switch s.phase {
	case AttemptCompleted:
		result := *s.result
		s.mu.Unlock()
		return result, nil
	case AttemptFinishing:
		s.mu.Unlock()
		return domain.Result{}, domain.ErrFinishInProgress
	case AttemptIdle:
		s.mu.Unlock()
		return domain.Result{}, domain.ErrAttemptClosed
	}
	now := s.now()
	if onlyIfExpired && s.remainingLocked(now) > 0 {
		s.mu.Unlock()
		return domain.Result{}, nil
	}
	s.phase = AttemptFinishing
	sub := s.submissionLocked(now)
	s.mu.Unlock()

	result, err := s.submitter.SubmitResult(ctx, sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.phase = AttemptActive
		metrics.AttemptsFinished.WithLabelValues("failed").Inc()
		s.log.Warn("result submission failed", zap.Error(err))
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrSubmission, err)
	}
	s.phase = AttemptCompleted
	s.result = &result
	metrics.AttemptsFinished.WithLabelValues("completed").Inc()
	s.log.Info("attempt completed",
		zap.String("result_id", result.ID),
		zap.Int("score", result.Score),
		zap.Int("total", result.TotalQuestions),
		zap.Int("time_spent", result.TimeSpent),
	)
	if s.persistent {
		if err := s.store.Delete(ctx, s.key); err != nil {
			s.log.Warn("clear attempt state failed", zap.Error(err))
		}
	}
	return result, nil
}

// Restart discards progress and starts the attempt over with a fresh clock.
func (s *AttemptSession) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == AttemptFinishing {
		return domain.ErrFinishInProgress
	}
	s.resetLocked()
	s.resumed = false
	s.phase = AttemptActive
	s.persistLocked(ctx)
	return nil
}

// Tick recomputes the remaining time and finishes the attempt once it runs out.
func (s *AttemptSession) Tick(ctx context.Context) (AttemptSnapshot, error) {
	s.mu.Lock()
	expired := s.phase == AttemptActive && s.remainingLocked(s.now()) <= 0
	s.mu.Unlock()

	if expired {
		if _, err := s.finish(ctx, true); err != nil && !errors.Is(err, domain.ErrFinishInProgress) {
			return s.Snapshot(), err
		}
	}
	return s.Snapshot(), nil
}

// Run ticks immediately and then every interval until ctx is cancelled. onTick sees every
// tick while the attempt is running and the first tick after it completes.
func (s *AttemptSession) Run(ctx context.Context, interval time.Duration, onTick func(AttemptSnapshot, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last AttemptPhase
	for {
		snap, err := s.Tick(ctx)
		if onTick != nil && (snap.Phase != AttemptCompleted || last != AttemptCompleted || err != nil) {
			onTick(snap, err)
		}
		last = snap.Phase

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Remaining returns the time left, never negative.
func (s *AttemptSession) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked(s.now())
}

func (s *AttemptSession) Snapshot() AttemptSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make(map[int]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	remaining := s.remainingLocked(s.now())
	snap := AttemptSnapshot{
		QuizID:               s.quiz.ID,
		Phase:                s.phase,
		CurrentQuestionIndex: s.current,
		TotalQuestions:       len(s.quiz.Questions),
		Answers:              answers,
		Remaining:            int((remaining + time.Second - 1) / time.Second),
		StartedAt:            s.startTime,
		Persistent:           s.persistent,
	}
	if s.result != nil {
		result := *s.result
		snap.Result = &result
	}
	return snap
}

func (s *AttemptSession) remainingLocked(now time.Time) time.Duration {
	if s.phase == AttemptCompleted {
		return 0
	}
	left := s.quiz.TimeLimitDuration() - now.Sub(s.startTime)
	if left < 0 {
		return 0
	}
	return left
}

func (s *AttemptSession) submissionLocked(now time.Time) domain.ResultSubmission {
	answers, score := Score(s.quiz, s.answers)

	elapsed := now.Sub(s.startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	spent := int(elapsed / time.Second)
	if spent > s.quiz.TimeLimit {
		spent = s.quiz.TimeLimit
	}

	return domain.ResultSubmission{
		QuizID:         s.quiz.ID,
		UserID:         s.key.UserID,
		Answers:        answers,
		Score:          score,
		TotalQuestions: len(s.quiz.Questions),
		TimeSpent:      spent,
	}
}

// Score aligns a sparse answer map to the question order and counts correct answers.
// Unanswered questions are recorded as domain.Unanswered and never count as correct.
func Score(quiz domain.Quiz, answers map[int]int) ([]int, int) {
	aligned := make([]int, len(quiz.Questions))
	score := 0
	for i, q := range quiz.Questions {
		choice, ok := answers[i]
		if !ok {
			aligned[i] = domain.Unanswered
			continue
		}
		aligned[i] = choice
		if choice == q.CorrectAnswer {
			score++
		}
	}
	return aligned, score
}

func (s *AttemptSession) persistLocked(ctx context.Context) {
	if !s.persistent {
		return
	}
	answers := make(map[int]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	state := domain.AttemptState{
		Answers:              answers,
		CurrentQuestionIndex: s.current,
		StartTime:            s.startTime.UnixMilli(),
	}
	if err := s.store.Save(ctx, s.key, state); err != nil {
		s.persistent = false
		s.log.Warn("attempt state unavailable; continuing in memory", zap.Error(err))
	}
}
