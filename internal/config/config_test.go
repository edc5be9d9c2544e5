package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.Total != 10 || cfg.Run.Workers != 3 || cfg.Run.RetryBudget() != 2 {
		t.Fatalf("run defaults wrong: %+v", cfg.Run)
	}
	if cfg.Browser.PasswordLength != 12 || !cfg.Browser.HeadlessMode() || !cfg.Browser.UseSymbols() {
		t.Fatalf("browser defaults wrong: %+v", cfg.Browser)
	}
	if cfg.Timeouts.EmailWait() != 45*time.Second {
		t.Fatalf("EmailWait = %s", cfg.Timeouts.EmailWait())
	}
	if cfg.Timeouts.PageLoad() != 30*time.Second {
		t.Fatalf("PageLoad = %s", cfg.Timeouts.PageLoad())
	}
	if cfg.Timeouts.PollInterval() != 2*time.Second {
		t.Fatalf("PollInterval = %s", cfg.Timeouts.PollInterval())
	}
	if cfg.Timeouts.SettleDelay() != 1500*time.Millisecond {
		t.Fatalf("SettleDelay = %s", cfg.Timeouts.SettleDelay())
	}
	if cfg.Run.RetryDelay() != 2*time.Second {
		t.Fatalf("RetryDelay = %s", cfg.Run.RetryDelay())
	}
	if cfg.Storage.AccountsFile != "accounts.txt" || cfg.Storage.LinkFile != ".last_link" {
		t.Fatalf("storage defaults wrong: %+v", cfg.Storage)
	}
	if !cfg.LinkCheck.IsEnabled() {
		t.Fatal("link check should default to enabled")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
run:
  total: 5
  workers: 2
  maxRetries: 1
  inviteLink: "https://example.dev/?invitecode=xyz"
browser:
  headless: false
  passwordLength: 16
  passwordSymbols: false
timeouts:
  emailWaitMs: 60000
linkCheck:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.Total != 5 || cfg.Run.Workers != 2 || cfg.Run.RetryBudget() != 1 {
		t.Fatalf("run section wrong: %+v", cfg.Run)
	}
	if cfg.Run.InviteLink != "https://example.dev/?invitecode=xyz" {
		t.Fatalf("invite link: %q", cfg.Run.InviteLink)
	}
	if cfg.Browser.HeadlessMode() {
		t.Fatal("headless=false should stick")
	}
	if cfg.Browser.PasswordLength != 16 || cfg.Browser.UseSymbols() {
		t.Fatalf("browser section wrong: %+v", cfg.Browser)
	}
	if cfg.Timeouts.EmailWait() != time.Minute {
		t.Fatalf("EmailWait = %s", cfg.Timeouts.EmailWait())
	}
	if cfg.LinkCheck.IsEnabled() {
		t.Fatal("linkCheck.enabled=false should stick")
	}
	// 未写的字段照样拿默认值。
	if cfg.Timeouts.PageLoad() != 30*time.Second {
		t.Fatalf("PageLoad = %s", cfg.Timeouts.PageLoad())
	}
}

func TestExplicitZeroRetriesIsRepresentable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
run:
  maxRetries: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.RetryBudget() != 0 {
		t.Fatalf("RetryBudget = %d, an explicit 0 must not be replaced by the default", cfg.Run.RetryBudget())
	}
}

func TestValidateRejectsNegativeCounts(t *testing.T) {
	for _, content := range []string{
		"run:\n  total: -1\n",
		"run:\n  workers: -2\n",
	} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("config %q must fail validation before defaults repair it", content)
		}
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("run: [not-a-map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml must fail")
	}
}

func TestValidateNotify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
notify:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("notify.enabled without email must fail validation")
	}
}
