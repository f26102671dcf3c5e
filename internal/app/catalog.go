package app

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-nexus-service/internal/domain"
)

// Catalog is a viewer's live view of quizzes and results: it loads both tables, follows
// their change feeds and merges the viewer's own writes optimistically. One Catalog is
// owned by one view and discarded with it.
type Catalog struct {
	service *QuizService
	feed    Subscriber
	viewer  domain.Viewer
	log     *zap.Logger

	quizzes *Collection[domain.Quiz]
	results *Collection[domain.Result]
	changed chan struct{}
}

func NewCatalog(service *QuizService, feed Subscriber, viewer domain.Viewer, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		service: service,
		feed:    feed,
		viewer:  viewer,
		log:     log.With(zap.String("user_id", viewer.UserID), zap.String("role", string(viewer.Role))),
		quizzes: NewCollection(QuizVisibility(viewer)),
		results: NewCollection(ResultVisibility(viewer)),
		changed: make(chan struct{}, 1),
	}
}

// Load fetches both collections from the store.
func (c *Catalog) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.loadQuizzes(gctx) })
	g.Go(func() error { return c.loadResults(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	c.notify()
	return nil
}

func (c *Catalog) loadQuizzes(ctx context.Context) error {
	quizzes, err := c.service.ListQuizzes(ctx, c.viewer)
	if err != nil {
		return err
	}
	c.quizzes.Replace(quizzes)
	return nil
}

func (c *Catalog) loadResults(ctx context.Context) error {
	results, err := c.service.ListResults(ctx, c.viewer, c.viewer.IsAdmin())
	if err != nil {
		return err
	}
	c.results.Replace(results)
	return nil
}

// Attach subscribes to both change feeds, loads both collections and then applies events
// until ctx is done or detach is called. Events published while the load runs queue in the
// subscriptions and are applied after it, never underneath it.
func (c *Catalog) Attach(ctx context.Context) (func(), error) {
	quizEvents, cancelQuizzes, err := c.feed.Subscribe(ctx, domain.TableQuizzes)
	if err != nil {
		return nil, err
	}
	resultEvents, cancelResults, err := c.feed.Subscribe(ctx, domain.TableResults)
	if err != nil {
		cancelQuizzes()
		return nil, err
	}
	if err := c.Load(ctx); err != nil {
		cancelQuizzes()
		cancelResults()
		return nil, err
	}

	ctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for quizEvents != nil || resultEvents != nil {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-quizEvents:
				if !ok {
					quizEvents = nil
					continue
				}
				c.HandleEvent(ctx, ev)
			case ev, ok := <-resultEvents:
				if !ok {
					resultEvents = nil
					continue
				}
				c.HandleEvent(ctx, ev)
			}
		}
	}()

	detach := func() {
		stop()
		cancelQuizzes()
		cancelResults()
		<-done
	}
	return detach, nil
}

// HandleEvent applies a single feed event.
func (c *Catalog) HandleEvent(ctx context.Context, ev domain.ChangeEvent) {
	switch ev.Kind {
	case domain.ChangeSubscribed:
		// Admins reconcile anything missed while disconnected.
		if c.viewer.IsAdmin() {
			c.reload(ctx, ev.Table)
		}
		return
	case domain.ChangeResync:
		c.reload(ctx, ev.Table)
		return
	}

	var (
		changed bool
		err     error
	)
	switch ev.Table {
	case domain.TableQuizzes:
		var change Change[domain.Quiz]
		if change, err = DecodeChange(ev, domain.Quiz.Normalize); err == nil {
			changed = c.quizzes.Apply(change)
		}
	case domain.TableResults:
		var change Change[domain.Result]
		if change, err = DecodeChange(ev, domain.Result.Normalize); err == nil {
			changed = c.results.Apply(change)
		}
	default:
		return
	}
	if err != nil {
		c.log.Warn("dropping undecodable change", zap.String("table", string(ev.Table)), zap.Error(err))
		return
	}
	if changed {
		c.notify()
	}
}

func (c *Catalog) reload(ctx context.Context, table domain.Table) {
	var err error
	switch table {
	case domain.TableQuizzes:
		err = c.loadQuizzes(ctx)
	case domain.TableResults:
		err = c.loadResults(ctx)
	default:
		return
	}
	if err != nil {
		c.log.Warn("reload failed", zap.String("table", string(table)), zap.Error(err))
		return
	}
	c.notify()
}

// CreateQuiz stores a new quiz and shows it immediately if the viewer may see it.
func (c *Catalog) CreateQuiz(ctx context.Context, draft domain.QuizDraft) (domain.Quiz, error) {
	quiz, err := c.service.CreateQuiz(ctx, c.viewer, draft)
	if err != nil {
		return domain.Quiz{}, err
	}
	c.applyLocal(Change[domain.Quiz]{Kind: domain.ChangeInsert, New: &quiz})
	return quiz, nil
}

// UpdateQuiz applies a partial update and merges the stored row locally.
func (c *Catalog) UpdateQuiz(ctx context.Context, quizID string, patch domain.QuizPatch) (domain.Quiz, error) {
	quiz, err := c.service.UpdateQuiz(ctx, c.viewer, quizID, patch)
	if err != nil {
		c.dropIfGone(quizID, err)
		return domain.Quiz{}, err
	}
	c.applyLocal(Change[domain.Quiz]{Kind: domain.ChangeUpdate, New: &quiz})
	return quiz, nil
}

// DeleteQuiz removes a quiz remotely and locally.
func (c *Catalog) DeleteQuiz(ctx context.Context, quizID string) error {
	if err := c.service.DeleteQuiz(ctx, c.viewer, quizID); err != nil {
		c.dropIfGone(quizID, err)
		return err
	}
	c.applyLocal(Change[domain.Quiz]{Kind: domain.ChangeDelete, Old: &domain.Quiz{ID: quizID}})
	return nil
}

func (c *Catalog) applyLocal(change Change[domain.Quiz]) {
	if c.quizzes.Apply(change) {
		c.notify()
	}
}

func (c *Catalog) dropIfGone(quizID string, err error) {
	if errors.Is(err, domain.ErrNotFound) && c.quizzes.Remove(quizID) {
		c.notify()
	}
}

func (c *Catalog) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Changes signals (coalesced) whenever either collection changed.
func (c *Catalog) Changes() <-chan struct{} {
	return c.changed
}

func (c *Catalog) Viewer() domain.Viewer {
	return c.viewer
}

func (c *Catalog) Quizzes() []domain.Quiz {
	return c.quizzes.Items()
}

func (c *Catalog) Results() []domain.Result {
	return c.results.Items()
}

// Quiz looks a quiz up in the local collection.
func (c *Catalog) Quiz(quizID string) (domain.Quiz, bool) {
	return c.quizzes.Get(quizID)
}
