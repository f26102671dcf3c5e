package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
)

const uniqueViolation = "23505"

// ErrQuizExists is returned by InsertQuiz when a quiz with the same id is already stored.
var ErrQuizExists = errors.New("quiz already exists")

const (
	quizColumns   = `id, title, description, questions, time_limit, difficulty, category, created_at, is_published, created_by`
	resultColumns = `id, quiz_id, user_id, answers, score, total_questions, time_spent, completed_at`
)

// Store implements app.Store on Postgres. Questions and answers are JSONB columns; change
// notifications arrive through LISTEN (see Listen) and fan out through an in-process feed.
type Store struct {
	pool *pgxpool.Pool
	feed *app.Feed
	log  *zap.Logger
}

func NewStore(pool *pgxpool.Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, feed: app.NewFeed(), log: log}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes`
	if filter.PublishedOnly {
		query += ` WHERE is_published`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, quizID)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) CreateQuiz(ctx context.Context, authorID string, draft domain.QuizDraft) (domain.Quiz, error) {
	if err := draft.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	quiz := draft.Quiz(authorID)
	quiz.ID = uuid.NewString()
	if err := s.insertQuiz(ctx, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz.Normalize(), nil
}

// InsertQuiz stores a fully formed quiz, keeping its id and creation time when set.
// Used for seeding.
func (s *Store) InsertQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if err := s.insertQuiz(ctx, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz.Normalize(), nil
}

func (s *Store) insertQuiz(ctx context.Context, quiz *domain.Quiz) error {
	questions, err := json.Marshal(quiz.Normalize().Questions)
	if err != nil {
		return err
	}
	createdAt := quiz.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO quizzes (id, title, description, questions, time_limit, difficulty, category, created_at, is_published, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		quiz.ID, quiz.Title, quiz.Description, questions, quiz.TimeLimit, string(quiz.Difficulty),
		quiz.Category, createdAt, quiz.Published, quiz.CreatedBy,
	).Scan(&quiz.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("insert quiz %s: %w", quiz.ID, ErrQuizExists)
	}
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuiz(ctx context.Context, quizID string, patch domain.QuizPatch) (domain.Quiz, error) {
	if err := patch.Validate(); err != nil {
		return domain.Quiz{}, err
	}

	var updated domain.Quiz
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		current, err := scanQuiz(tx.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1 FOR UPDATE`, quizID))
		if err != nil {
			return err
		}
		updated = patch.Apply(current).Normalize()
		questions, err := json.Marshal(updated.Questions)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE quizzes
			SET title=$2, description=$3, questions=$4, time_limit=$5, difficulty=$6, category=$7, is_published=$8
			WHERE id=$1`,
			quizID, updated.Title, updated.Description, questions, updated.TimeLimit,
			string(updated.Difficulty), updated.Category, updated.Published,
		)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) SubmitResult(ctx context.Context, sub domain.ResultSubmission) (domain.Result, error) {
	if err := sub.Validate(); err != nil {
		return domain.Result{}, err
	}
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
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
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO quiz_results (id, quiz_id, user_id, answers, score, total_questions, time_spent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING completed_at`,
		result.ID, result.QuizID, result.UserID, answers, result.Score, result.TotalQuestions, result.TimeSpent,
	).Scan(&result.CompletedAt)
	if err != nil {
		return domain.Result{}, fmt.Errorf("insert result: %w", err)
	}
	return result, nil
}

func (s *Store) ListResults(ctx context.Context, filter domain.ResultFilter) ([]domain.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM quiz_results`
	args := []interface{}{}
	if filter.UserID != "" {
		query += ` WHERE user_id=$1`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY completed_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Result, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *Store) getResult(ctx context.Context, resultID string) (domain.Result, error) {
	result, err := scanResult(s.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM quiz_results WHERE id=$1`, resultID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return result, err
}

// Subscribe returns a channel that receives change events for a table.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Store) Subscribe(ctx context.Context, table domain.Table) (<-chan domain.ChangeEvent, func(), error) {
	return s.feed.Subscribe(ctx, table)
}

// Close ends every open subscription. The pool is owned by the caller.
func (s *Store) Close() {
	s.feed.Close()
}

func scanQuiz(row rowScanner) (domain.Quiz, error) {
	var (
		quiz       domain.Quiz
		questions  []byte
		difficulty string
	)
	err := row.Scan(&quiz.ID, &quiz.Title, &quiz.Description, &questions, &quiz.TimeLimit, &difficulty,
		&quiz.Category, &quiz.CreatedAt, &quiz.Published, &quiz.CreatedBy)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Difficulty = domain.Difficulty(difficulty)
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	return quiz.Normalize(), nil
}

func scanResult(row rowScanner) (domain.Result, error) {
	var (
		result  domain.Result
		answers []byte
	)
	err := row.Scan(&result.ID, &result.QuizID, &result.UserID, &answers, &result.Score,
		&result.TotalQuestions, &result.TimeSpent, &result.CompletedAt)
	if err != nil {
		return domain.Result{}, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &result.Answers); err != nil {
			return domain.Result{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return result.Normalize(), nil
}
