package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/warent/proxycop/internal/config"
	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/status"
)

// testConfig writes a proxycop.json whose store lives in a temp dir.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Store.Path = filepath.Join(dir, "data.db")
	path := filepath.Join(dir, "proxycop.json")
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRoutesCommand(t *testing.T) {
	cfgPath := testConfig(t)
	out, err := run(t, "-c", cfgPath, "routes")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}

	for _, want := range []string{"Mode: history", "Home", "URLStatus", "/url/:url/status", "/url/example.com/status"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "#") {
		t.Errorf("history mode output contains '#':\n%s", out)
	}
	if strings.Index(out, "Home") > strings.Index(out, "URLStatus") {
		t.Errorf("routes not printed in table order:\n%s", out)
	}
}

func TestBlacklistCommands(t *testing.T) {
	cfgPath := testConfig(t)

	out, err := run(t, "-c", cfgPath, "blacklist", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No hosts") {
		t.Errorf("empty list output = %q", out)
	}

	if _, err := run(t, "-c", cfgPath, "blacklist", "add", "https://Example.com/path", "other.org"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err = run(t, "-c", cfgPath, "blacklist", "add", "example.com")
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if !strings.Contains(out, "already blacklisted") {
		t.Errorf("duplicate add output = %q", out)
	}

	out, err = run(t, "-c", cfgPath, "blacklist", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "example.com") || !strings.Contains(out, "other.org") {
		t.Errorf("list output = %q", out)
	}

	if _, err := run(t, "-c", cfgPath, "blacklist", "remove", "other.org"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, _ = run(t, "-c", cfgPath, "blacklist", "list")
	if strings.Contains(out, "other.org") {
		t.Errorf("other.org still listed: %q", out)
	}
}

func TestBlacklistRejectsInvalidHost(t *testing.T) {
	cfgPath := testConfig(t)
	_, err := run(t, "-c", cfgPath, "blacklist", "add", "http://")

	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.CodeInvalidHost {
		t.Fatalf("err = %v, want %s", err, errors.CodeInvalidHost)
	}
}

func TestCooldownCommands(t *testing.T) {
	cfgPath := testConfig(t)

	if _, err := run(t, "-c", cfgPath, "cooldown", "set", "news.ycombinator.com", "5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := run(t, "-c", cfgPath, "cooldown", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "news.ycombinator.com: 5 min") {
		t.Errorf("list output = %q", out)
	}

	if _, err := run(t, "-c", cfgPath, "cooldown", "set", "a.com", "-1"); err == nil {
		t.Error("negative minutes accepted")
	}

	out, err = run(t, "-c", cfgPath, "cooldown", "clear", "news.ycombinator.com", "--reset")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(out, "Cleared") || !strings.Contains(out, "Lifted") {
		t.Errorf("clear output = %q", out)
	}

	out, _ = run(t, "-c", cfgPath, "cooldown", "clear", "news.ycombinator.com")
	if !strings.Contains(out, "no cooldown configured") {
		t.Errorf("second clear output = %q", out)
	}
}

func TestStatusCommand(t *testing.T) {
	cfgPath := testConfig(t)

	out, err := run(t, "-c", cfgPath, "status", "example.com")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "no restriction") {
		t.Errorf("unrestricted output = %q", out)
	}

	if _, err := run(t, "-c", cfgPath, "blacklist", "add", "example.com"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err = run(t, "-c", cfgPath, "status", "--json", "http://EXAMPLE.com/x")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var st status.URLStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st.Host != "example.com" || !st.Blacklisted {
		t.Errorf("status = %+v, want blacklisted example.com", st)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxycop.json")

	if _, err := run(t, "-c", path, "config", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := run(t, "-c", path, "config", "init"); err == nil {
		t.Error("init overwrote an existing file without --force")
	}
	if _, err := run(t, "-c", path, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err := run(t, "-c", path, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, config.DefaultUIHost) {
		t.Errorf("show output missing %q:\n%s", config.DefaultUIHost, out)
	}
}

func TestBackupRequiresBucket(t *testing.T) {
	cfgPath := testConfig(t)
	_, err := run(t, "-c", cfgPath, "backup")

	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.CodeNotConfigured {
		t.Fatalf("err = %v, want %s", err, errors.CodeNotConfigured)
	}
}

func TestVersionShort(t *testing.T) {
	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("version = %q, want %q", out, version)
	}
}
