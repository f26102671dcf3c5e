package app_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
)

func TestFeedDeliversPerTable(t *testing.T) {
	feed := app.NewFeed()
	defer feed.Close()

	quizzes, cancelQuizzes, _ := feed.Subscribe(context.Background(), domain.TableQuizzes)
	defer cancelQuizzes()
	results, cancelResults, _ := feed.Subscribe(context.Background(), domain.TableResults)
	defer cancelResults()
	<-quizzes
	<-results

	feed.Publish(domain.ChangeEvent{Table: domain.TableResults, Kind: domain.ChangeInsert})
	select {
	case ev := <-quizzes:
		t.Fatalf("quiz subscriber got a results event %+v", ev)
	default:
	}
	if ev := <-results; ev.Kind != domain.ChangeInsert {
		t.Fatalf("expected insert, got %s", ev.Kind)
	}

	feed.Announce(domain.TableQuizzes)
	if ev := <-quizzes; ev.Kind != domain.ChangeSubscribed {
		t.Fatalf("expected reconnect marker, got %s", ev.Kind)
	}
}

func TestFeedOverflowReplacesBacklogWithResync(t *testing.T) {
	feed := app.NewFeed()
	events, cancel, _ := feed.Subscribe(context.Background(), domain.TableQuizzes)
	defer cancel()

	// The subscriber never reads; a delete lands early in the backlog.
	deleted, _ := json.Marshal(map[string]string{"id": "gone"})
	feed.Publish(domain.ChangeEvent{Table: domain.TableQuizzes, Kind: domain.ChangeDelete, Old: deleted})
	const total = 600
	for i := 0; i < total; i++ {
		raw, _ := json.Marshal(map[string]string{"id": strconv.Itoa(i)})
		feed.Publish(domain.ChangeEvent{Table: domain.TableQuizzes, Kind: domain.ChangeInsert, New: raw})
	}

	resyncs := 0
	var last domain.ChangeEvent
	for len(events) > 0 {
		ev := <-events
		if ev.Kind == domain.ChangeDelete {
			t.Fatalf("delete should have been folded into a resync")
		}
		if ev.Kind == domain.ChangeResync {
			resyncs++
		}
		last = ev
	}
	if resyncs != 1 {
		t.Fatalf("expected exactly one pending resync marker, got %d", resyncs)
	}
	var row struct{ ID string }
	_ = json.Unmarshal(last.New, &row)
	if row.ID != strconv.Itoa(total-1) {
		t.Fatalf("newest event must be kept, got %q", row.ID)
	}
}

func TestFeedCloseEndsSubscriptions(t *testing.T) {
	feed := app.NewFeed()
	events, cancel, _ := feed.Subscribe(context.Background(), domain.TableQuizzes)
	<-events
	feed.Close()
	if _, ok := <-events; ok {
		t.Fatalf("expected closed channel")
	}
	cancel()

	late, _, _ := feed.Subscribe(context.Background(), domain.TableQuizzes)
	if _, ok := <-late; ok {
		t.Fatalf("subscriptions after close must be closed")
	}
}
