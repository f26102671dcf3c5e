package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/infra/memory"
)

func TestCatalogOptimisticCreateThenEchoHasNoDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()
	catalog := app.NewCatalog(app.NewQuizService(store, nil, nil), store, admin, nil)

	detach, err := catalog.Attach(ctx)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer detach()

	quiz, err := catalog.CreateQuiz(ctx, validDraft("Ports"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := catalog.Quiz(quiz.ID); !ok {
		t.Fatalf("created quiz must be visible immediately")
	}

	// A write from elsewhere only arrives through the feed, after the echo of ours.
	other, err := app.NewQuizService(store, nil, nil).CreateQuiz(ctx, admin, validDraft("Marker"))
	if err != nil {
		t.Fatalf("create marker: %v", err)
	}
	waitFor(t, func() bool { _, ok := catalog.Quiz(other.ID); return ok })
	if n := len(catalog.Quizzes()); n != 2 {
		t.Fatalf("expected 2 quizzes without duplicates, got %d", n)
	}
}

func TestCatalogFollowsRemoteChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	defer store.Close()
	service := app.NewQuizService(store, nil, nil)
	catalog := app.NewCatalog(service, store, user, nil)

	detach, err := catalog.Attach(ctx)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer detach()

	draft := validDraft("Draft only")
	hidden, _ := service.CreateQuiz(ctx, admin, draft)
	draft.Title = "Live"
	draft.Published = true
	live, _ := service.CreateQuiz(ctx, admin, draft)

	waitFor(t, func() bool { return len(catalog.Quizzes()) == 1 })
	if _, ok := catalog.Quiz(hidden.ID); ok {
		t.Fatalf("unpublished quiz must stay hidden from users")
	}

	unpublish := false
	if _, err := service.UpdateQuiz(ctx, admin, live.ID, domain.QuizPatch{Published: &unpublish}); err != nil {
		t.Fatalf("update: %v", err)
	}
	waitFor(t, func() bool { return len(catalog.Quizzes()) == 0 })

	if _, err := store.SubmitResult(ctx, domain.ResultSubmission{QuizID: live.ID, UserID: "u2", Answers: []int{0}, TotalQuestions: 1}); err != nil {
		t.Fatalf("submit other: %v", err)
	}
	if _, err := store.SubmitResult(ctx, domain.ResultSubmission{QuizID: live.ID, UserID: "u1", Answers: []int{0}, TotalQuestions: 1, Score: 1}); err != nil {
		t.Fatalf("submit own: %v", err)
	}
	waitFor(t, func() bool { return len(catalog.Results()) == 1 })
	if catalog.Results()[0].UserID != "u1" {
		t.Fatalf("user must only see own results")
	}
}

func TestCatalogAdminRefetchesOnSubscribed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	adminCatalog := app.NewCatalog(app.NewQuizService(store, nil, nil), store, admin, nil)
	userCatalog := app.NewCatalog(app.NewQuizService(store, nil, nil), store, user, nil)
	for _, c := range []*app.Catalog{adminCatalog, userCatalog} {
		if err := c.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	// Rows written while the feed was down never produced events.
	store.Seed(domain.Quiz{Title: "Missed", Category: "Ops", TimeLimit: 30, Published: true})
	subscribed := domain.ChangeEvent{Table: domain.TableQuizzes, Kind: domain.ChangeSubscribed}
	adminCatalog.HandleEvent(ctx, subscribed)
	userCatalog.HandleEvent(ctx, subscribed)

	if len(adminCatalog.Quizzes()) != 1 {
		t.Fatalf("admin must reconcile after reconnect")
	}
	if len(userCatalog.Quizzes()) != 0 {
		t.Fatalf("standard users rely on the feed only")
	}
}

// snapshotThenDelete returns a quiz list that is already stale: the victim is deleted after
// the snapshot is taken and before it is handed back.
type snapshotThenDelete struct {
	*memory.Store
	victim string
	once   sync.Once
}

func (s *snapshotThenDelete) ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	snapshot, err := s.Store.ListQuizzes(ctx, filter)
	s.once.Do(func() {
		_ = s.Store.DeleteQuiz(ctx, s.victim)
		time.Sleep(50 * time.Millisecond)
	})
	return snapshot, err
}

func TestCatalogDeleteDuringInitialLoadIsNotLost(t *testing.T) {
	ctx := context.Background()
	store := &snapshotThenDelete{Store: memory.NewStore(), victim: "doomed"}
	defer store.Close()
	store.Seed(
		domain.Quiz{ID: "doomed", Title: "Doomed", Category: "Ops", TimeLimit: 30, Published: true},
		domain.Quiz{ID: "kept", Title: "Kept", Category: "Ops", TimeLimit: 30, Published: true},
	)

	catalog := app.NewCatalog(app.NewQuizService(store, nil, nil), store, user, nil)
	detach, err := catalog.Attach(ctx)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer detach()

	waitFor(t, func() bool { _, ok := catalog.Quiz("doomed"); return !ok })
	if _, ok := catalog.Quiz("kept"); !ok {
		t.Fatalf("untouched quiz must stay listed")
	}
}

func TestCatalogResyncRefetchesForEveryRole(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	catalogs := []*app.Catalog{
		app.NewCatalog(app.NewQuizService(store, nil, nil), store, admin, nil),
		app.NewCatalog(app.NewQuizService(store, nil, nil), store, user, nil),
	}
	for _, c := range catalogs {
		if err := c.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	// Events lost to an overflowing subscription.
	store.Seed(domain.Quiz{Title: "Missed", Category: "Ops", TimeLimit: 30, Published: true})
	for _, c := range catalogs {
		c.HandleEvent(ctx, domain.ChangeEvent{Table: domain.TableQuizzes, Kind: domain.ChangeResync})
		if len(c.Quizzes()) != 1 {
			t.Fatalf("%s viewer must refetch on resync", c.Viewer().Role)
		}
	}
}

func TestCatalogDropsQuizThatVanished(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Seed(domain.Quiz{ID: "gone", Title: "Gone", Category: "Ops", TimeLimit: 30})
	catalog := app.NewCatalog(app.NewQuizService(store, nil, nil), store, admin, nil)
	if err := catalog.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Deleted elsewhere without this catalog seeing the event.
	if err := store.DeleteQuiz(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	title := "Renamed"
	if _, err := catalog.UpdateQuiz(ctx, "gone", domain.QuizPatch{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := catalog.Quiz("gone"); ok {
		t.Fatalf("stale quiz must be removed locally")
	}
	select {
	case <-catalog.Changes():
	default:
		t.Fatalf("expected a change signal")
	}
}

func TestCatalogRejectsUserWrites(t *testing.T) {
	store := memory.NewStore()
	catalog := app.NewCatalog(app.NewQuizService(store, nil, nil), store, user, nil)
	if _, err := catalog.CreateQuiz(context.Background(), validDraft("Nope")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(catalog.Quizzes()) != 0 {
		t.Fatalf("rejected write must not show up locally")
	}
}

func validDraft(title string) domain.QuizDraft {
	return domain.QuizDraft{
		Title:     title,
		Category:  "Maritime",
		TimeLimit: 60,
		Questions: []domain.Question{{
			Prompt:        "Which flag?",
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: 2,
		}},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
