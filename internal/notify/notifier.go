// Package notify 在一轮运行收尾后把汇总结果投递出去。
// 当前只有邮件一种通道，发送在后台进行，不阻塞主流程退出前的汇报。
package notify

import (
	"context"
	"time"
)

// RunFinishedEvent 是一轮运行的终态快照。
type RunFinishedEvent struct {
	RunID      string        `json:"runId"`
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"durationMs"`
	Emails     []string      `json:"emails,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

type Notifier interface {
	NotifyRunFinished(ctx context.Context, evt RunFinishedEvent)
	Close(ctx context.Context) error
}

// NopNotifier 用于未配置通知的场合。
type NopNotifier struct{}

func (NopNotifier) NotifyRunFinished(context.Context, RunFinishedEvent) {}
func (NopNotifier) Close(context.Context) error                        { return nil }
