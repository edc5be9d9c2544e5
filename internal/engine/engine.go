// Package engine 调度一批账号注册：有界并发、全局启动限速、按账号重试、
// 结果聚合与落盘。浏览器层面的事交给 Runner，这里只管编排。
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"signup_engine/internal/config"
	"signup_engine/internal/lifecycle"
	"signup_engine/internal/logbus"
	"signup_engine/internal/model"
	"signup_engine/internal/notify"
	"signup_engine/internal/store/filestore"
	"signup_engine/internal/store/sqlite"
)

// Runner 执行单个账号的完整注册流程。返回值必有终态，不返回 error。
type Runner interface {
	RunAccount(ctx context.Context, idx, total, attempt int) model.AccountResult
}

type Options struct {
	Runner   Runner
	Run      config.RunConfig
	Limits   config.LimitsConfig
	Parallel bool

	Bus     *logbus.Bus
	Runtime *lifecycle.Runtime

	// 下面三个都可为 nil，缺了只是少一种落盘/通知途径。
	Files    *filestore.Files
	Store    *sqlite.Store
	Notifier notify.Notifier
}

type Engine struct {
	runner   Runner
	runCfg   config.RunConfig
	parallel bool

	bus      *logbus.Bus
	rt       *lifecycle.Runtime
	files    *filestore.Files
	store    *sqlite.Store
	notifier notify.Notifier

	inFlight      chan struct{}
	globalLimiter *rate.Limiter

	mu      sync.Mutex
	runID   string
	results []model.AccountResult

	running   atomic.Bool
	completed atomic.Int64
	succeeded atomic.Int64
}

// Progress 是给观察口用的进度快照。
type Progress struct {
	RunID      string `json:"runId"`
	Running    bool   `json:"running"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

func New(opts Options) *Engine {
	workers := opts.Run.Workers
	if workers <= 0 {
		workers = 1
	}
	qps := opts.Limits.LaunchQPS
	if qps <= 0 {
		qps = 1
	}
	burst := opts.Limits.LaunchBurst
	if burst <= 0 {
		burst = 1
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Engine{
		runner:        opts.Runner,
		runCfg:        opts.Run,
		parallel:      opts.Parallel && workers > 1,
		bus:           opts.Bus,
		rt:            opts.Runtime,
		files:         opts.Files,
		store:         opts.Store,
		notifier:      notifier,
		inFlight:      make(chan struct{}, workers),
		globalLimiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

func (e *Engine) Snapshot() Progress {
	e.mu.Lock()
	runID := e.runID
	e.mu.Unlock()
	completed := int(e.completed.Load())
	succeeded := int(e.succeeded.Load())
	return Progress{
		RunID:      runID,
		Running:    e.running.Load(),
		Total:      e.runCfg.Total,
		Completed:  completed,
		Successful: succeeded,
		Failed:     completed - succeeded,
	}
}

// Run 跑完整一批并返回汇总。被请求停机时不再启动新账号，已完成的结果照常汇总。
func (e *Engine) Run(ctx context.Context) (model.Summary, error) {
	total := e.runCfg.Total
	start := time.Now()

	runID := uuid.NewString()
	if e.store != nil {
		if id, err := e.store.BeginRun(ctx, e.runCfg.InviteLink, total); err != nil {
			e.log("warn", "运行记录写入失败", map[string]any{"error": err.Error()})
		} else {
			runID = id
		}
	}
	e.mu.Lock()
	e.runID = runID
	e.results = e.results[:0]
	e.mu.Unlock()
	e.completed.Store(0)
	e.succeeded.Store(0)
	e.running.Store(true)
	defer e.running.Store(false)

	e.publish("run_state", map[string]any{"runId": runID, "state": "started", "total": total})

	if e.parallel {
		e.runParallel(ctx, total)
	} else {
		e.runSequential(ctx, total)
	}

	summary := e.buildSummary(runID, total, time.Since(start))

	if e.store != nil {
		if err := e.store.FinishRun(ctx, runID, summary.Successful, summary.Failed); err != nil {
			e.log("warn", "运行记录收尾失败", map[string]any{"error": err.Error()})
		}
	}
	e.publish("run_state", map[string]any{
		"runId":      runID,
		"state":      "finished",
		"successful": summary.Successful,
		"failed":     summary.Failed,
	})
	e.notifyFinished(ctx, summary)

	return summary, nil
}

func (e *Engine) runSequential(ctx context.Context, total int) {
	for idx := 1; idx <= total; idx++ {
		res := e.runWithRetry(ctx, idx, total)
		e.record(ctx, res)
	}
}

func (e *Engine) runParallel(ctx context.Context, total int) {
	var wg sync.WaitGroup
	for idx := 1; idx <= total; idx++ {
		if !e.acquireInFlight(ctx) {
			// ctx 已取消，剩余序号直接记停机终态。
			e.record(ctx, e.shutdownResult(idx))
			continue
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer e.releaseInFlight()
			res := e.runWithRetry(ctx, idx, total)
			e.record(ctx, res)
		}(idx)
	}
	wg.Wait()
}

// runWithRetry 一个账号最多跑重试预算+1 次。停机请求在每次尝试前
// 与重试等待后各查一次，命中即短路，不再碰浏览器。
func (e *Engine) runWithRetry(ctx context.Context, idx, total int) model.AccountResult {
	attempts := e.runCfg.RetryBudget() + 1
	var last model.AccountResult

	for attempt := 1; attempt <= attempts; attempt++ {
		if e.shutdownRequested() || ctx.Err() != nil {
			return e.shutdownResult(idx)
		}
		if err := e.globalLimiter.Wait(ctx); err != nil {
			return e.shutdownResult(idx)
		}

		last = e.runner.RunAccount(ctx, idx, total, attempt)
		if last.Success {
			return last
		}

		if attempt < attempts {
			e.log("warn", "账号注册失败，准备重试", map[string]any{
				"account": idx,
				"attempt": attempt,
				"error":   last.Error,
			})
			if !sleepCtx(ctx, e.runCfg.RetryDelay()) {
				return e.shutdownResult(idx)
			}
			if e.shutdownRequested() {
				return e.shutdownResult(idx)
			}
		}
	}
	return last
}

func (e *Engine) record(ctx context.Context, res model.AccountResult) {
	e.mu.Lock()
	e.results = append(e.results, res)
	runID := e.runID
	e.mu.Unlock()

	e.completed.Add(1)
	if res.Success {
		e.succeeded.Add(1)
		// 成功一个立刻落盘一个，中途被杀也不丢已到手的凭据。
		if e.files != nil {
			if err := e.files.AppendAccount(res.Email, res.Password); err != nil {
				e.log("error", "凭据写入失败", map[string]any{
					"email": res.Email,
					"error": err.Error(),
				})
			}
		}
	}
	if e.store != nil {
		if err := e.store.InsertResult(ctx, runID, res); err != nil {
			e.log("warn", "结果入库失败", map[string]any{"error": err.Error()})
		}
	}
	e.publish("attempt_result", res)
}

func (e *Engine) buildSummary(runID string, total int, elapsed time.Duration) model.Summary {
	e.mu.Lock()
	results := make([]model.AccountResult, len(e.results))
	copy(results, e.results)
	e.mu.Unlock()

	summary := model.Summary{
		RunID:         runID,
		Total:         total,
		TotalDuration: elapsed,
		Results:       results,
	}
	var successDur time.Duration
	for _, r := range results {
		if r.Success {
			summary.Successful++
			successDur += r.Duration
		} else {
			summary.Failed++
		}
	}
	if summary.Successful > 0 {
		summary.AvgDuration = successDur / time.Duration(summary.Successful)
	}
	return summary
}

func (e *Engine) notifyFinished(ctx context.Context, s model.Summary) {
	evt := notify.RunFinishedEvent{
		RunID:      s.RunID,
		Total:      s.Total,
		Successful: s.Successful,
		Failed:     s.Failed,
		Duration:   s.TotalDuration,
	}
	for _, r := range s.SuccessResults() {
		evt.Emails = append(evt.Emails, r.Email)
	}
	for _, r := range s.FailedResults() {
		evt.Errors = append(evt.Errors, r.Error)
	}
	e.notifier.NotifyRunFinished(ctx, evt)
}

func (e *Engine) shutdownResult(idx int) model.AccountResult {
	return model.AccountResult{
		Success:      false,
		Error:        "shutdown requested",
		AccountIndex: idx,
	}
}

func (e *Engine) shutdownRequested() bool {
	return e.rt != nil && e.rt.ShutdownRequested()
}

func (e *Engine) acquireInFlight(ctx context.Context) bool {
	select {
	case e.inFlight <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) releaseInFlight() {
	select {
	case <-e.inFlight:
	default:
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus != nil {
		e.bus.Publish(typ, data)
	}
}

func (e *Engine) log(level, msg string, fields map[string]any) {
	if e.bus != nil {
		e.bus.Log(level, msg, fields)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
