package postgres

import (
	"testing"

	"quiz-nexus-service/internal/domain"
)

func TestParseNotification(t *testing.T) {
	n, err := parseNotification(`{"table":"quiz_results","type":"INSERT","id":"r-1"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Table != domain.TableResults || n.Type != domain.ChangeInsert || n.ID != "r-1" {
		t.Fatalf("unexpected notification %+v", n)
	}

	bad := []string{
		`not json`,
		`{"table":"users","type":"INSERT","id":"x"}`,
		`{"table":"quizzes","type":"TRUNCATE","id":"x"}`,
		`{"table":"quizzes","type":"DELETE"}`,
	}
	for _, payload := range bad {
		if _, err := parseNotification(payload); err == nil {
			t.Fatalf("expected error for %s", payload)
		}
	}
}
