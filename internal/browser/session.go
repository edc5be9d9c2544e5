// Package browser 负责浏览器会话：按指纹启动、打开隐身页面、登记到存活注册表、
// 幂等清理。每次账号尝试独占一个浏览器进程，会话之间不共享任何状态。
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"signup_engine/internal/lifecycle"
	"signup_engine/internal/logbus"
	"signup_engine/internal/model"
)

type Provider struct {
	rt       *lifecycle.Runtime
	bus      *logbus.Bus
	headless bool
}

func NewProvider(rt *lifecycle.Runtime, bus *logbus.Bus, headless bool) *Provider {
	return &Provider{rt: rt, bus: bus, headless: headless}
}

// Session 一次账号尝试绑定的浏览器执行环境。
type Session struct {
	ID       string
	Identity model.Identity

	launcher *launcher.Launcher
	browser  *rod.Browser
	rt       *lifecycle.Runtime
	bus      *logbus.Bus

	mu    sync.Mutex
	pages []*rod.Page

	closed atomic.Bool
}

// Open 启动一个隐身浏览器并应用指纹。会话在浏览器可用的第一时间就登记进
// 注册表，保证停机路径总能强制关掉它；启动失败不在这里重试，由上层决定。
func (p *Provider) Open(ctx context.Context, id model.Identity) (*Session, error) {
	l := launcher.New().
		Headless(p.headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		Identity: id,
		launcher: l,
		browser:  b,
		rt:       p.rt,
		bus:      p.bus,
	}
	if p.rt != nil {
		p.rt.RegisterSession(s.ID, s)
	}

	if p.bus != nil {
		p.bus.Log("debug", "浏览器会话已创建", map[string]any{
			"sessionId": s.ID,
			"viewport":  id.ViewportLabel(),
			"ua":        truncate(id.UserAgent, 48),
		})
	}
	return s, nil
}

// NewPage 在会话里打开一个带 stealth 补丁的新标签页并应用指纹。
func (s *Session) NewPage(ctx context.Context) (*rod.Page, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("session %s already closed", s.ID)
	}

	var page *rod.Page
	if err := rod.Try(func() {
		page = stealth.MustPage(s.browser)
	}); err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.Identity.UserAgent,
		AcceptLanguage: s.Identity.AcceptLanguage(),
	}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("apply user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.Identity.Width,
		Height:            s.Identity.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("apply viewport: %w", err)
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()
	return page, nil
}

// Close 幂等释放会话：先尽力清掉 cookie 与本地存储，再杀浏览器进程。
// 清理过程中的任何失败都吞掉，绝不向调用方抛错。
func (s *Session) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	pages := s.pages
	s.pages = nil
	s.mu.Unlock()

	for _, page := range pages {
		p := page.Context(context.Background()).Timeout(2 * time.Second)
		_ = rod.Try(func() {
			p.MustEval(`() => { try { localStorage.clear(); sessionStorage.clear(); } catch (e) {} }`)
		})
		_ = rod.Try(func() {
			_ = proto.NetworkClearBrowserCookies{}.Call(p)
		})
	}

	_ = rod.Try(func() { _ = s.browser.Close() })
	if s.launcher != nil {
		s.launcher.Kill()
	}
	if s.rt != nil {
		s.rt.UnregisterSession(s.ID)
	}
	if s.bus != nil {
		s.bus.Log("debug", "浏览器会话已关闭", map[string]any{"sessionId": s.ID})
	}
}

// ForceClose 停机路径使用：跳过存储清理，直接结束浏览器进程。
func (s *Session) ForceClose() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	_ = rod.Try(func() { _ = s.browser.Close() })
	if s.launcher != nil {
		s.launcher.Kill()
	}
	if s.rt != nil {
		s.rt.UnregisterSession(s.ID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
