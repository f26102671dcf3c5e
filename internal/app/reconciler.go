package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"quiz-nexus-service/internal/domain"
)

// Entity is anything a Collection can key.
type Entity interface {
	Key() string
}

// Change is a change notification decoded into typed rows.
type Change[T Entity] struct {
	Kind domain.ChangeKind
	New  *T
	Old  *T
}

// Key returns the identifier the change refers to, preferring the new row.
func (c Change[T]) Key() string {
	if c.New != nil {
		return (*c.New).Key()
	}
	if c.Old != nil {
		return (*c.Old).Key()
	}
	return ""
}

// DecodeChange turns a raw feed event into typed rows. normalize may be nil.
func DecodeChange[T Entity](ev domain.ChangeEvent, normalize func(T) T) (Change[T], error) {
	change := Change[T]{Kind: ev.Kind}
	decode := func(raw json.RawMessage) (*T, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", ev.Table, err)
		}
		if normalize != nil {
			row = normalize(row)
		}
		return &row, nil
	}
	var err error
	if change.New, err = decode(ev.New); err != nil {
		return Change[T]{}, err
	}
	if change.Old, err = decode(ev.Old); err != nil {
		return Change[T]{}, err
	}
	return change, nil
}

// QuizVisibility is the quiz visibility policy: admins see everything, everyone else
// only published quizzes.
func QuizVisibility(viewer domain.Viewer) func(domain.Quiz) bool {
	if viewer.IsAdmin() {
		return func(domain.Quiz) bool { return true }
	}
	return func(q domain.Quiz) bool { return q.Published }
}

// ResultVisibility lets admins see every result and users only their own.
func ResultVisibility(viewer domain.Viewer) func(domain.Result) bool {
	if viewer.IsAdmin() {
		return func(domain.Result) bool { return true }
	}
	return func(r domain.Result) bool { return r.UserID == viewer.UserID }
}

// Merge applies a change to items and reports whether anything changed.
// items is never modified; a changed result is always a fresh slice.
func Merge[T Entity](items []T, change Change[T], visible func(T) bool) ([]T, bool) {
	switch change.Kind {
	case domain.ChangeInsert:
		if change.New == nil || !visible(*change.New) {
			return items, false
		}
		if indexOf(items, (*change.New).Key()) != -1 {
			return items, false
		}
		return prepend(items, *change.New), true

	case domain.ChangeUpdate:
		if change.New == nil {
			return items, false
		}
		row := *change.New
		idx := indexOf(items, row.Key())
		switch {
		case idx != -1 && visible(row):
			next := append([]T(nil), items...)
			next[idx] = row
			return next, true
		case idx != -1:
			return removeAt(items, idx), true
		case visible(row):
			return prepend(items, row), true
		}
		return items, false

	case domain.ChangeDelete:
		key := change.Key()
		if key == "" {
			return items, false
		}
		idx := indexOf(items, key)
		if idx == -1 {
			return items, false
		}
		return removeAt(items, idx), true
	}
	return items, false
}

func indexOf[T Entity](items []T, key string) int {
	for i := range items {
		if items[i].Key() == key {
			return i
		}
	}
	return -1
}

func prepend[T Entity](items []T, row T) []T {
	next := make([]T, 0, len(items)+1)
	next = append(next, row)
	return append(next, items...)
}

func removeAt[T Entity](items []T, idx int) []T {
	next := make([]T, 0, len(items)-1)
	next = append(next, items[:idx]...)
	return append(next, items[idx+1:]...)
}

// Collection is an ordered, newest-first, role-filtered mirror of a remote table.
type Collection[T Entity] struct {
	mu      sync.RWMutex
	visible func(T) bool
	items   []T
}

func NewCollection[T Entity](visible func(T) bool) *Collection[T] {
	return &Collection[T]{visible: visible}
}

// Replace swaps the contents for a freshly fetched list, keeping the first occurrence of
// each key and only rows the viewer may see.
func (c *Collection[T]) Replace(rows []T) {
	next := make([]T, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if !c.visible(row) {
			continue
		}
		if _, dup := seen[row.Key()]; dup {
			continue
		}
		seen[row.Key()] = struct{}{}
		next = append(next, row)
	}

	c.mu.Lock()
	c.items = next
	c.mu.Unlock()
}

// Apply merges a change into the collection.
func (c *Collection[T]) Apply(change Change[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, changed := Merge(c.items, change, c.visible)
	c.items = next
	return changed
}

// Remove drops the row with the given key, if present.
func (c *Collection[T]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := indexOf(c.items, key)
	if idx == -1 {
		return false
	}
	c.items = removeAt(c.items, idx)
	return true
}

func (c *Collection[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := indexOf(c.items, key); idx != -1 {
		return c.items[idx], true
	}
	var zero T
	return zero, false
}

// Items returns a copy of the current rows.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
