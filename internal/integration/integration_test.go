package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/infra/postgres"
	pgmigrations "quiz-nexus-service/internal/infra/postgres/migrations"
	infraredis "quiz-nexus-service/internal/infra/redis"
	"quiz-nexus-service/internal/seed"
)

var admin = domain.Viewer{UserID: "admin-1", Role: domain.RoleAdmin}

func TestAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateUp(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool, zap.NewNop())
	defer store.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()
	cache := infraredis.NewQuizRepository(redisClient, store, 5*time.Minute, zap.NewNop())
	states := infraredis.NewAttemptStore(redisClient, time.Hour)

	demo := seed.DemoQuizzes("system")[0]
	if _, err := store.InsertQuiz(ctx, demo); err != nil {
		t.Fatalf("seed demo quiz: %v", err)
	}
	if _, err := store.InsertQuiz(ctx, demo); !errors.Is(err, postgres.ErrQuizExists) {
		t.Fatalf("expected reseeding to be reported as existing, got %v", err)
	}

	service := app.NewQuizService(store, cache, zap.NewNop())
	draft := sampleDraft()
	quiz, err := service.CreateQuiz(ctx, admin, draft)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	viewer := domain.Viewer{UserID: "u1", Role: domain.RoleUser}
	attempts := app.NewAttemptService(cache, store, states, zap.NewNop())
	session, err := attempts.Open(ctx, viewer, quiz.ID)
	if err != nil {
		t.Fatalf("open attempt: %v", err)
	}
	if !session.Snapshot().Persistent {
		t.Fatalf("expected attempt progress to be persisted in redis")
	}
	if err := session.SelectAnswer(ctx, 0, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// A reconnect resumes the stored progress.
	resumed, err := attempts.Open(ctx, viewer, quiz.ID)
	if err != nil {
		t.Fatalf("reopen attempt: %v", err)
	}
	if !resumed.Resumed() || resumed.Snapshot().Answers[0] != 1 {
		t.Fatalf("expected resumed attempt with answer, got %+v", resumed.Snapshot())
	}

	result, err := resumed.Finish(ctx)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Score != 1 || result.TotalQuestions != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	results, err := service.ListResults(ctx, viewer, false)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 1 || results[0].ID != result.ID || results[0].Answers[1] != domain.Unanswered {
		t.Fatalf("unexpected stored results %+v", results)
	}
}

func TestChangeListenerRepublishesRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateUp(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool, zap.NewNop())
	defer store.Close()

	events, unsubscribe, err := store.Subscribe(ctx, domain.TableQuizzes)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()
	next(t, events) // initial marker

	done := make(chan error, 1)
	go func() { done <- store.Listen(ctx) }()
	if ev := next(t, events); ev.Kind != domain.ChangeSubscribed {
		t.Fatalf("expected marker once listening, got %s", ev.Kind)
	}

	quiz, err := store.CreateQuiz(ctx, admin.UserID, sampleDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ev := next(t, events)
	var row domain.Quiz
	if err := json.Unmarshal(ev.New, &row); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	if ev.Kind != domain.ChangeInsert || row.ID != quiz.ID || len(row.Questions) != 2 {
		t.Fatalf("unexpected insert event %s %+v", ev.Kind, row)
	}

	if err := store.DeleteQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ev := next(t, events); ev.Kind != domain.ChangeDelete || !strings.Contains(string(ev.Old), quiz.ID) {
		t.Fatalf("unexpected delete event %s %s", ev.Kind, ev.Old)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func next(t *testing.T, events <-chan domain.ChangeEvent) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("feed closed")
		}
		return ev
	case <-time.After(10 * time.Second):
		t.Fatalf("no change event in time")
	}
	return domain.ChangeEvent{}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateUp(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleDraft() domain.QuizDraft {
	return domain.QuizDraft{
		Title:     "Harbour signals",
		Category:  "Maritime",
		TimeLimit: 120,
		Published: true,
		Questions: []domain.Question{
			{Prompt: "Flag for pilot on board?", Options: []string{"A", "H", "P", "Q"}, CorrectAnswer: 1},
			{Prompt: "Flag for about to sail?", Options: []string{"A", "H", "P", "Q"}, CorrectAnswer: 2},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
