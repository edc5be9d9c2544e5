package logbus

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	consoleTimeStyle  = lipgloss.NewStyle().Faint(true)
	consoleDebugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Faint(true)
	consoleInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	consoleWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	consoleErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	consoleFieldStyle = lipgloss.NewStyle().Faint(true)
)

// ConsoleSink 订阅总线并把日志串行打印到终端（可选同时写日志文件）。
// 多个 worker 并发产生日志，落笔只发生在 sink 自己的 goroutine 里。
type ConsoleSink struct {
	bus     *Bus
	verbose bool
	out     io.Writer
	file    io.WriteCloser

	cancel func()
	wg     sync.WaitGroup
}

func NewConsoleSink(bus *Bus, verbose bool, logFile string) (*ConsoleSink, error) {
	s := &ConsoleSink{
		bus:     bus,
		verbose: verbose,
		out:     os.Stdout,
	}
	if strings.TrimSpace(logFile) != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		s.file = f
	}

	ch, cancel := bus.Subscribe(256)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range ch {
			s.emit(msg)
		}
	}()
	return s, nil
}

func (s *ConsoleSink) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.file != nil {
		_ = s.file.Close()
	}
}

func (s *ConsoleSink) emit(msg Message) {
	ld, ok := msg.Data.(LogData)
	if !ok {
		return
	}
	if ld.Level == "debug" && !s.verbose {
		if s.file != nil {
			s.writeFileLine(msg.Time, ld)
		}
		return
	}

	ts := time.UnixMilli(msg.Time).Format("15:04:05")
	icon, style := levelStyle(ld.Level)
	line := fmt.Sprintf("%s %s %s%s",
		consoleTimeStyle.Render(ts),
		style.Render(icon),
		ld.Msg,
		consoleFieldStyle.Render(formatFields(ld.Fields)),
	)
	fmt.Fprintln(s.out, line)

	if s.file != nil {
		s.writeFileLine(msg.Time, ld)
	}
}

func (s *ConsoleSink) writeFileLine(atMs int64, ld LogData) {
	ts := time.UnixMilli(atMs).Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(s.file, "%s | %-5s | %s%s\n", ts, strings.ToUpper(ld.Level), ld.Msg, formatFields(ld.Fields))
}

func levelStyle(level string) (string, lipgloss.Style) {
	switch level {
	case "debug":
		return "•", consoleDebugStyle
	case "warn", "warning":
		return "⚠", consoleWarnStyle
	case "error":
		return "✗", consoleErrorStyle
	default:
		return "ℹ", consoleInfoStyle
	}
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
	}
	return sb.String()
}
