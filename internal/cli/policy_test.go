package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
)

func init() {
	color.NoColor = true
}

func TestRenderDecisionsWithoutEmail(t *testing.T) {
	var buf bytes.Buffer
	renderDecisions(&buf, gating.DefaultPolicy().Gates, 4, false, false)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected header plus 4 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	want := []string{"open", "open", "email (dismissible)", "email (dismissible)"}
	for i, label := range want {
		if !strings.HasSuffix(lines[3+i], label) {
			t.Errorf("view %d: expected %q, got %q", i+1, label, lines[3+i])
		}
	}
}

func TestRenderDecisionsBrokerGate(t *testing.T) {
	var buf bytes.Buffer
	renderDecisions(&buf, gating.DefaultPolicy().Gates, 10, true, false)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasSuffix(lines[len(lines)-1], "broker (blocking)") {
		t.Errorf("expected broker gate at view 10, got %q", lines[len(lines)-1])
	}
	if !strings.HasSuffix(lines[len(lines)-2], "open") {
		t.Errorf("expected view 9 open, got %q", lines[len(lines)-2])
	}
}

func TestPolicyDecideCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("gates:\n  triggerAfterDrills: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := PolicyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decide", "--file", path, "--drills", "2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !strings.Contains(out.String(), "   2  email (dismissible)") {
		t.Errorf("expected second view gated, got:\n%s", out.String())
	}
}

func TestPolicyDecideRejectsZeroDrills(t *testing.T) {
	cmd := PolicyCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"decide", "--drills", "0"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for --drills 0")
	}
}

func TestPolicyShowCommand(t *testing.T) {
	cmd := PolicyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "triggerAfterDrills: 2") {
		t.Errorf("expected default threshold in output:\n%s", out.String())
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "test-admin-secret")

	cmd := TokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "ops"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	subject, err := security.ValidateAdminToken(strings.TrimSpace(out.String()), "test-admin-secret")
	if err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
	if subject != "ops" {
		t.Errorf("expected subject ops, got %q", subject)
	}
}
