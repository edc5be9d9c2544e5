// Package linkcheck 在开跑前用纯 HTTP 验一下邀请链接还活着，
// 避免整批浏览器会话都撞在一个死链接上。
package linkcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"signup_engine/internal/config"
	"signup_engine/internal/logbus"
	"signup_engine/internal/utils"
)

type Checker struct {
	cfg config.LinkCheckConfig
	bus *logbus.Bus
}

func New(cfg config.LinkCheckConfig, bus *logbus.Bus) *Checker {
	return &Checker{cfg: cfg, bus: bus}
}

// Check 返回 nil 表示链接可达且响应像一个正常页面。
// 4xx/5xx 或响应体明显是错误页都算不可达。
func (c *Checker) Check(ctx context.Context, link string) error {
	if !c.cfg.IsEnabled() {
		return nil
	}
	if strings.TrimSpace(link) == "" {
		return fmt.Errorf("invite link is empty")
	}

	ua := utils.RandomIdentity().UserAgent
	client := resty.New().
		SetTimeout(c.cfg.Timeout()).
		SetRetryCount(c.cfg.Retry).
		SetRetryWaitTime(c.cfg.Wait()).
		SetHeader("User-Agent", ua).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode() >= 500
		})

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.bus != nil {
			c.bus.Log("debug", "检测邀请链接", map[string]any{"url": req.URL})
		}
		return nil
	})

	resp, err := client.R().SetContext(ctx).Get(link)
	if err != nil {
		return fmt.Errorf("invite link unreachable: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("invite link returned HTTP %d", resp.StatusCode())
	}

	body := strings.ToLower(string(resp.Body()))
	for _, marker := range []string{"page not found", "invitation expired", "invalid invite"} {
		if strings.Contains(body, marker) {
			return fmt.Errorf("invite link looks dead: body contains %q", marker)
		}
	}

	if c.bus != nil {
		c.bus.Log("info", "邀请链接可达", map[string]any{"status": resp.StatusCode()})
	}
	return nil
}
