package app

import (
	"context"
	"sync"

	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/metrics"
)

const feedBuffer = 256

// Feed fans table change events out to in-process subscribers.
type Feed struct {
	mu     sync.Mutex
	subs   map[domain.Table]map[chan domain.ChangeEvent]struct{}
	closed bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[domain.Table]map[chan domain.ChangeEvent]struct{})}
}

// Subscribe returns a channel receiving events for table. The first event is always a
// SUBSCRIBED marker. The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe(_ context.Context, table domain.Table) (<-chan domain.ChangeEvent, func(), error) {
	ch := make(chan domain.ChangeEvent, feedBuffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	if f.subs[table] == nil {
		f.subs[table] = make(map[chan domain.ChangeEvent]struct{})
	}
	f.subs[table][ch] = struct{}{}
	ch <- domain.ChangeEvent{Table: table, Kind: domain.ChangeSubscribed}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[table][ch]; ok {
			delete(f.subs[table], ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// Publish delivers ev to every subscriber of its table. A subscriber whose buffer is full
// loses its backlog and gets a single RESYNC marker instead, so it knows to refetch.
func (f *Feed) Publish(ev domain.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[ev.Table] {
		select {
		case ch <- ev:
		default:
			drain(ch)
			ch <- domain.ChangeEvent{Table: ev.Table, Kind: domain.ChangeResync}
			metrics.FeedEvents.WithLabelValues(string(ev.Table), string(domain.ChangeResync)).Inc()
		}
	}
	metrics.FeedEvents.WithLabelValues(string(ev.Table), string(ev.Kind)).Inc()
}

func drain(ch chan domain.ChangeEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Announce tells every subscriber of table that the upstream feed (re)connected.
func (f *Feed) Announce(table domain.Table) {
	f.Publish(domain.ChangeEvent{Table: table, Kind: domain.ChangeSubscribed})
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, subs := range f.subs {
		for ch := range subs {
			close(ch)
		}
	}
	f.subs = make(map[domain.Table]map[chan domain.ChangeEvent]struct{})
}
