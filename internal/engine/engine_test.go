package engine

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signup_engine/internal/config"
	"signup_engine/internal/lifecycle"
	"signup_engine/internal/model"
	"signup_engine/internal/store/filestore"
)

// fakeRunner 按序号预设结果脚本，每次调用消耗一项。
type fakeRunner struct {
	mu      sync.Mutex
	scripts map[int][]model.AccountResult
	calls   map[int]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		scripts: make(map[int][]model.AccountResult),
		calls:   make(map[int]int),
	}
}

func (f *fakeRunner) script(idx int, results ...model.AccountResult) {
	f.scripts[idx] = results
}

func (f *fakeRunner) RunAccount(_ context.Context, idx, _, attempt int) model.AccountResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[idx]++
	script := f.scripts[idx]
	if len(script) == 0 {
		return model.AccountResult{Success: false, Error: "no script", AccountIndex: idx, Attempt: attempt}
	}
	res := script[0]
	f.scripts[idx] = script[1:]
	res.AccountIndex = idx
	res.Attempt = attempt
	return res
}

func (f *fakeRunner) callCount(idx int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[idx]
}

func ok(email string) model.AccountResult {
	return model.AccountResult{Success: true, Email: email, Password: "pw", Duration: time.Millisecond}
}

func fail(msg string) model.AccountResult {
	return model.AccountResult{Success: false, Error: msg}
}

func retries(n int) *int {
	return &n
}

func newTestEngine(t *testing.T, runner Runner, run config.RunConfig, parallel bool) (*Engine, *filestore.Files, string) {
	t.Helper()
	dir := t.TempDir()
	accounts := filepath.Join(dir, "accounts.txt")
	files, err := filestore.New(accounts, filepath.Join(dir, ".last_link"))
	require.NoError(t, err)

	run.RetryDelayMs = 1
	eng := New(Options{
		Runner:   runner,
		Run:      run,
		Limits:   config.LimitsConfig{LaunchQPS: 1000, LaunchBurst: 1000},
		Parallel: parallel,
		Runtime:  lifecycle.New(nil),
		Files:    files,
	})
	return eng, files, accounts
}

func TestRunProducesOneResultPerAccount(t *testing.T) {
	runner := newFakeRunner()
	for i := 1; i <= 4; i++ {
		runner.script(i, ok("a@b.c"))
	}
	eng, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 4, Workers: 2, MaxRetries: retries(2)}, true)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 4, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 4)

	seen := map[int]bool{}
	for _, r := range summary.Results {
		assert.False(t, seen[r.AccountIndex], "index %d reported twice", r.AccountIndex)
		seen[r.AccountIndex] = true
	}
}

func TestRetryStopsAtFirstSuccess(t *testing.T) {
	runner := newFakeRunner()
	runner.script(1, fail("first try"), ok("x@y.z"))
	eng, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 1, Workers: 1, MaxRetries: retries(2)}, false)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 2, runner.callCount(1), "must stop retrying after a success")
	assert.Equal(t, 2, summary.Results[0].Attempt)
}

func TestRetryBudgetIsMaxRetriesPlusOne(t *testing.T) {
	runner := newFakeRunner()
	runner.script(1, fail("e1"), fail("e2"), fail("e3"), fail("e4"))
	eng, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 1, Workers: 1, MaxRetries: retries(2)}, false)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 3, runner.callCount(1))
	assert.Equal(t, "e3", summary.Results[0].Error, "last attempt's error must win")
}

func TestZeroRetriesRunsEachAccountOnce(t *testing.T) {
	runner := newFakeRunner()
	runner.script(1, fail("e1"), ok("never@seen.it"))
	eng, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 1, Workers: 1, MaxRetries: retries(0)}, false)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 1, runner.callCount(1), "budget 0 means a single attempt")
	assert.Equal(t, "e1", summary.Results[0].Error)
}

func TestShutdownShortCircuitsBeforeLaunch(t *testing.T) {
	runner := newFakeRunner()
	rtEngine, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 3, Workers: 1, MaxRetries: retries(2)}, false)
	rtEngine.rt.RequestShutdown()

	summary, err := rtEngine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 3, summary.Failed)
	for _, r := range summary.Results {
		assert.Equal(t, "shutdown requested", r.Error)
	}
	assert.Equal(t, 0, runner.callCount(1), "runner must not be invoked after shutdown")
}

func TestSuccessfulCredentialsArePersistedImmediately(t *testing.T) {
	runner := newFakeRunner()
	runner.script(1, ok("one@test.dev"))
	runner.script(2, fail("nope"), fail("nope"), fail("nope"))
	eng, files, accountsPath := newTestEngine(t, runner, config.RunConfig{Total: 2, Workers: 1, MaxRetries: retries(2)}, false)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)

	count, err := files.CountAccounts()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	f, err := os.Open(accountsPath)
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	line := sc.Text()
	assert.True(t, strings.HasPrefix(line, "one@test.dev:"), "line = %q", line)
}

func TestSnapshotTracksProgress(t *testing.T) {
	runner := newFakeRunner()
	runner.script(1, ok("a@b.c"))
	runner.script(2, fail("x"), fail("x"), fail("x"))
	eng, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 2, Workers: 1, MaxRetries: retries(2)}, false)

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	p := eng.Snapshot()
	assert.False(t, p.Running)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 1, p.Successful)
	assert.Equal(t, 1, p.Failed)
	assert.NotEmpty(t, p.RunID)
}

func TestParallelRunCompletesAllAccounts(t *testing.T) {
	runner := newFakeRunner()
	for i := 1; i <= 8; i++ {
		if i%2 == 0 {
			runner.script(i, ok("even@test.dev"))
		} else {
			runner.script(i, fail("odd"), fail("odd"))
		}
	}
	eng, _, _ := newTestEngine(t, runner, config.RunConfig{Total: 8, Workers: 3, MaxRetries: retries(1)}, true)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, len(summary.Results))
	assert.Equal(t, 4, summary.Successful)
	assert.Equal(t, 4, summary.Failed)
}
