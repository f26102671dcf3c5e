package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quiz-nexus-service/internal/domain"
)

// Channel is the NOTIFY channel the change triggers publish on.
const Channel = "quiz_changes"

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// notification is the trigger payload. Rows are re-read by id to stay under the
// NOTIFY payload limit.
type notification struct {
	Table domain.Table      `json:"table"`
	Type  domain.ChangeKind `json:"type"`
	ID    string            `json:"id"`
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return notification{}, fmt.Errorf("decode notification: %w", err)
	}
	switch n.Table {
	case domain.TableQuizzes, domain.TableResults:
	default:
		return notification{}, fmt.Errorf("unknown table %q", n.Table)
	}
	switch n.Type {
	case domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete:
	default:
		return notification{}, fmt.Errorf("unknown change type %q", n.Type)
	}
	if n.ID == "" {
		return notification{}, errors.New("notification without id")
	}
	return n, nil
}

// Listen holds a dedicated connection on LISTEN quiz_changes and republishes every
// notification on the store's feed. Each (re)connect announces SUBSCRIBED on both tables
// so viewers can reconcile what they missed. It blocks until ctx is done.
func (s *Store) Listen(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("change listener disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	s.log.Info("change listener connected", zap.String("channel", Channel))
	s.feed.Announce(domain.TableQuizzes)
	s.feed.Announce(domain.TableResults)

	for {
		msg, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		n, err := parseNotification(msg.Payload)
		if err != nil {
			s.log.Warn("dropping notification", zap.String("payload", msg.Payload), zap.Error(err))
			continue
		}
		ev, ok, err := s.changeEvent(ctx, n)
		if err != nil {
			s.log.Warn("change row fetch failed", zap.String("table", string(n.Table)), zap.String("id", n.ID), zap.Error(err))
			continue
		}
		if ok {
			s.feed.Publish(ev)
		}
	}
}

// changeEvent builds the feed event for a notification. Inserts and updates of rows that
// are already gone by the time they are read are skipped; the delete follows.
func (s *Store) changeEvent(ctx context.Context, n notification) (domain.ChangeEvent, bool, error) {
	ev := domain.ChangeEvent{Table: n.Table, Kind: n.Type}
	if n.Type == domain.ChangeDelete {
		old, err := json.Marshal(map[string]string{"id": n.ID})
		if err != nil {
			return domain.ChangeEvent{}, false, fmt.Errorf("encode deleted key: %w", err)
		}
		ev.Old = old
		return ev, true, nil
	}

	var (
		row any
		err error
	)
	switch n.Table {
	case domain.TableQuizzes:
		row, err = s.GetQuiz(ctx, n.ID)
	case domain.TableResults:
		row, err = s.getResult(ctx, n.ID)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ChangeEvent{}, false, nil
	}
	if err != nil {
		return domain.ChangeEvent{}, false, err
	}
	ev.New, err = json.Marshal(row)
	return ev, err == nil, err
}
