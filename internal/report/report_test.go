package report

import (
	"strings"
	"testing"
	"time"

	"signup_engine/internal/model"
)

func TestRenderContainsCredentialsAndStats(t *testing.T) {
	s := model.Summary{
		RunID:         "run-42",
		Total:         3,
		Successful:    2,
		Failed:        1,
		TotalDuration: 2 * time.Minute,
		AvgDuration:   40 * time.Second,
		Results: []model.AccountResult{
			{Success: true, Email: "a@b.c", Password: "pw1", AccountIndex: 1, Duration: 30 * time.Second},
			{Success: true, Email: "d@e.f", Password: "pw2", AccountIndex: 2, Duration: 50 * time.Second},
			{Success: false, Error: "verification timeout", AccountIndex: 3},
		},
	}

	out := Render(s)
	for _, want := range []string{
		"run-42",
		"a@b.c:pw1",
		"d@e.f:pw2",
		"verification timeout",
		"#3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAllFailed(t *testing.T) {
	s := model.Summary{
		RunID:  "run-0",
		Total:  1,
		Failed: 1,
		Results: []model.AccountResult{
			{Success: false, Error: "session start failed", AccountIndex: 1},
		},
	}
	out := Render(s)
	if !strings.Contains(out, "session start failed") {
		t.Fatalf("report missing failure reason:\n%s", out)
	}
	if strings.Contains(out, ":pw") {
		t.Fatal("no credentials section expected when nothing succeeded")
	}
}
