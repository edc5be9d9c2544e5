package workflow

import (
	"errors"
	"strings"
	"testing"
)

func TestFirstMatchReturnsFirstHit(t *testing.T) {
	calls := []string{}
	got, err := firstMatch([]strategy{
		{name: "a", run: func() (string, error) { calls = append(calls, "a"); return "", errors.New("miss a") }},
		{name: "b", run: func() (string, error) { calls = append(calls, "b"); return "value-b", nil }},
		{name: "c", run: func() (string, error) { calls = append(calls, "c"); return "value-c", nil }},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "value-b" {
		t.Fatalf("got %q, want value-b", got)
	}
	if strings.Join(calls, ",") != "a,b" {
		t.Fatalf("later strategies must not run after a hit, calls=%v", calls)
	}
}

func TestFirstMatchReportsMisses(t *testing.T) {
	var missed []string
	_, err := firstMatch([]strategy{
		{name: "x", run: func() (string, error) { return "", errors.New("boom x") }},
		{name: "y", run: func() (string, error) { return "", errors.New("boom y") }},
	}, func(name string, err error) {
		missed = append(missed, name)
	})
	if err == nil {
		t.Fatal("expected error when every strategy misses")
	}
	if len(missed) != 2 || missed[0] != "x" || missed[1] != "y" {
		t.Fatalf("onMiss calls = %v", missed)
	}
	for _, want := range []string{"x: boom x", "y: boom y"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q should mention %q", err.Error(), want)
		}
	}
}

func TestFirstMatchAllowsEmptyValueOnHit(t *testing.T) {
	got, err := firstMatch([]strategy{
		{name: "action", run: func() (string, error) { return "", nil }},
	}, nil)
	if err != nil || got != "" {
		t.Fatalf("got (%q, %v), want empty hit", got, err)
	}
}
