package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quiz-nexus-service/internal/domain"
	transport "quiz-nexus-service/internal/transport/http"
)

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  secret: cli-secret\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTH_SECRET", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--user", "alice", "--role", "admin"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	auth, _ := transport.NewAuthenticator("cli-secret", time.Hour)
	viewer, err := auth.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if viewer.UserID != "alice" || viewer.Role != domain.RoleAdmin {
		t.Fatalf("unexpected viewer %+v", viewer)
	}
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("auth:\n  secret: cli-secret\n"), 0o600)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--config", path, "--user", "alice", "--role", "root"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
