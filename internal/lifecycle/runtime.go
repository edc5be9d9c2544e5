// Package lifecycle 管理进程级共享状态：停机标志与存活浏览器会话注册表。
// 两者是 worker 之间唯一的共享可变状态，各自用一把锁保护即可。
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"signup_engine/internal/logbus"
)

// Closable 可被强制关闭的会话。关闭必须幂等且不返回错误。
type Closable interface {
	ForceClose()
}

type Runtime struct {
	bus *logbus.Bus

	shutdown atomic.Bool

	mu       sync.Mutex
	sessions map[string]Closable

	closeOnce sync.Once
}

func New(bus *logbus.Bus) *Runtime {
	return &Runtime{
		bus:      bus,
		sessions: make(map[string]Closable),
	}
}

// RequestShutdown 置位停机标志。只会从 false 翻到 true，进程内不会清除。
func (r *Runtime) RequestShutdown() {
	r.shutdown.Store(true)
}

func (r *Runtime) ShutdownRequested() bool {
	return r.shutdown.Load()
}

// RegisterSession 把会话登记进注册表。必须在会话可用的第一时间调用，
// 保证并发停机总能找到并关掉它。
func (r *Runtime) RegisterSession(id string, s Closable) {
	if id == "" || s == nil {
		return
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
}

func (r *Runtime) UnregisterSession(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Runtime) LiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll 强制关闭所有存活会话。信号路径和正常退出路径都会到这里，
// sync.Once 保证整个进程只执行一遍；单个会话关闭失败直接忽略。
func (r *Runtime) CloseAll() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		list := make([]Closable, 0, len(r.sessions))
		for _, s := range r.sessions {
			list = append(list, s)
		}
		r.sessions = make(map[string]Closable)
		r.mu.Unlock()

		for _, s := range list {
			s.ForceClose()
		}
	})
}

// InstallSignalHandlers 安装 INT/TERM/QUIT 处理：
// 第一个信号置位停机标志并强杀所有会话，随后交给 onShutdown（通常等待收尾后退出）；
// 第二个信号直接硬退出。
func (r *Runtime) InstallSignalHandlers(onShutdown func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-ch
		if r.bus != nil {
			r.bus.Log("warn", "收到停机信号，开始清理", map[string]any{"signal": sig.String()})
		}
		r.RequestShutdown()
		r.CloseAll()
		if onShutdown != nil {
			go onShutdown()
		}

		<-ch
		os.Exit(1)
	}()
}
