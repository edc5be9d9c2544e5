package notify

import (
	"strings"
	"testing"
	"time"

	"signup_engine/internal/config"
)

func TestSMTPConfigForEmail(t *testing.T) {
	cases := []struct {
		email    string
		wantHost string
		wantPort int
		wantSSL  bool
	}{
		{"u@qq.com", "smtp.qq.com", 465, true},
		{"u@163.com", "smtp.163.com", 465, true},
		{"u@gmail.com", "smtp.gmail.com", 587, false},
		{"u@outlook.com", "smtp.office365.com", 587, false},
		{"u@corp.example", "smtp.corp.example", 465, true},
	}
	for _, tc := range cases {
		host, port, ssl, err := smtpConfigForEmail(tc.email)
		if err != nil {
			t.Fatalf("%s: %v", tc.email, err)
		}
		if host != tc.wantHost || port != tc.wantPort || ssl != tc.wantSSL {
			t.Fatalf("%s: got (%s, %d, %v)", tc.email, host, port, ssl)
		}
	}

	if _, _, _, err := smtpConfigForEmail("not-an-email"); err == nil {
		t.Fatal("invalid address must fail")
	}
}

func TestValidateNotifyConfig(t *testing.T) {
	if err := validateNotifyConfig(config.NotifyConfig{}); err == nil {
		t.Fatal("empty config must fail")
	}
	if err := validateNotifyConfig(config.NotifyConfig{Email: "u@qq.com"}); err == nil {
		t.Fatal("missing auth code must fail")
	}
	if err := validateNotifyConfig(config.NotifyConfig{Email: "not an email", AuthCode: "x"}); err == nil {
		t.Fatal("malformed email must fail")
	}
	if err := validateNotifyConfig(config.NotifyConfig{Email: "u@qq.com", AuthCode: "x"}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestBuildRunFinishedBody(t *testing.T) {
	evt := RunFinishedEvent{
		RunID:      "run-1",
		Total:      3,
		Successful: 2,
		Failed:     1,
		Duration:   90 * time.Second,
		Emails:     []string{"a@b.c", "d@e.f"},
		Errors:     []string{"verification email not received"},
	}
	html, text, err := buildRunFinishedBody(evt)
	if err != nil {
		t.Fatalf("buildRunFinishedBody: %v", err)
	}
	for _, want := range []string{"run-1", "a@b.c", "d@e.f", "verification email not received", "90.0s"} {
		if !strings.Contains(html, want) {
			t.Fatalf("html body missing %q", want)
		}
		if !strings.Contains(text, want) {
			t.Fatalf("text body missing %q", want)
		}
	}
}
