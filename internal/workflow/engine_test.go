package workflow

import (
	"context"
	"testing"
	"time"
)

func TestContainsAnyKeyword(t *testing.T) {
	keywords := []string{"MeDo", "Verify", "support@medo.dev"}
	cases := map[string]bool{
		"please VERIFY your address": true,
		"from SUPPORT@MEDO.DEV":      true,
		"welcome to medo!":           true,
		"unrelated newsletter":       false,
		"":                           false,
	}
	for text, want := range cases {
		if got := containsAnyKeyword(text, keywords); got != want {
			t.Fatalf("containsAnyKeyword(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestBaseSiteURL(t *testing.T) {
	cases := map[string]string{
		"https://medo.dev/?invitecode=user-9mj2gtv04um8": "https://medo.dev",
		"https://medo.dev/path?a=1&b=2":                  "https://medo.dev",
		"http://localhost:8080/?invitecode=x":            "http://localhost:8080",
		"not a url":                                      "not a url",
	}
	for in, want := range cases {
		if got := baseSiteURL(in); got != want {
			t.Fatalf("baseSiteURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSleepCtxHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleepCtx(ctx, time.Minute) {
		t.Fatal("cancelled context must abort the sleep")
	}
	if time.Since(start) > time.Second {
		t.Fatal("abort must be immediate")
	}

	if !sleepCtx(context.Background(), 0) {
		t.Fatal("zero duration must succeed")
	}
}
