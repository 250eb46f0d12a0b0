package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"calmsession/internal/logging"
)

func newTestShell(t *testing.T, configPath string) (*shell, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(func() { logging.SetVerbosity(0) })
	return newShell(nil, configPath, &buf), &buf
}

func TestShellLogBuiltin(t *testing.T) {
	sh, buf := newTestShell(t, "")

	tests := []struct {
		line string
		want string
	}{
		{"log --level debug", "debug"},
		{"log -vvv", "trace"},
		{"log info", "info"},
	}
	for _, tt := range tests {
		if err := sh.exec(tt.line); err != nil {
			t.Fatalf("%s: %v", tt.line, err)
		}
		if got := logging.LevelName(); got != tt.want {
			t.Errorf("%s: level = %s, want %s", tt.line, got, tt.want)
		}
	}

	buf.Reset()
	if err := sh.exec("log"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "log level: info") {
		t.Errorf("log output = %q", buf.String())
	}
	if err := sh.exec("log --level loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestShellBuiltins(t *testing.T) {
	sh, buf := newTestShell(t, "")

	if err := sh.exec("exit"); !errors.Is(err, errExit) {
		t.Errorf("exit = %v", err)
	}
	if err := sh.exec("quit"); !errors.Is(err, errExit) {
		t.Errorf("quit = %v", err)
	}
	if err := sh.exec("   "); err != nil {
		t.Errorf("blank line = %v", err)
	}
	if err := sh.exec(`config get "breathing.mood`); err == nil {
		t.Error("unterminated quote accepted")
	}
	if err := sh.exec("shell"); err != nil || !strings.Contains(buf.String(), "Already in the shell") {
		t.Errorf("nested shell = %v, %q", err, buf.String())
	}
}

func TestShellRunsCommandsAgainstItsConfig(t *testing.T) {
	cfg := withTempHome(t)
	sh, buf := newTestShell(t, cfg)

	if err := sh.exec("log debug"); err != nil {
		t.Fatal(err)
	}
	if err := sh.exec("config set breathing.mood stressed"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	buf.Reset()
	if err := sh.exec("config get breathing.mood"); err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "stressed" {
		t.Errorf("config get = %q", buf.String())
	}
	if got := logging.LevelName(); got != "debug" {
		t.Errorf("level after a command = %s, want the shell level debug", got)
	}
	if err := sh.exec("config set no.such.key 1"); err == nil {
		t.Error("unknown key accepted")
	}
}
