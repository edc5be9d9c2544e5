// Package report 把一轮运行的汇总渲染成终端友好的文本块。
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"signup_engine/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// Render 生成完整汇总：统计面板、成功账号清单、失败原因清单。
func Render(s model.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("注册批次汇总"))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(statsBlock(s)))
	b.WriteString("\n")

	if ok := s.SuccessResults(); len(ok) > 0 {
		b.WriteString(okStyle.Render(fmt.Sprintf("成功账号（%d）", len(ok))))
		b.WriteString("\n")
		for _, r := range ok {
			b.WriteString(fmt.Sprintf("  %s:%s", r.Email, r.Password))
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (%.1fs)", r.Duration.Seconds())))
			b.WriteString("\n")
		}
	}

	if failed := s.FailedResults(); len(failed) > 0 {
		b.WriteString(failStyle.Render(fmt.Sprintf("失败账号（%d）", len(failed))))
		b.WriteString("\n")
		for _, r := range failed {
			b.WriteString(fmt.Sprintf("  #%d：%s\n", r.AccountIndex, r.Error))
		}
	}

	return b.String()
}

func statsBlock(s model.Summary) string {
	rate := 0.0
	if s.Total > 0 {
		rate = float64(s.Successful) / float64(s.Total) * 100
	}
	lines := []string{
		fmt.Sprintf("运行 ID   %s", s.RunID),
		fmt.Sprintf("总数      %d", s.Total),
		fmt.Sprintf("成功      %s", okStyle.Render(fmt.Sprintf("%d", s.Successful))),
		fmt.Sprintf("失败      %s", failStyle.Render(fmt.Sprintf("%d", s.Failed))),
		fmt.Sprintf("成功率    %.0f%%", rate),
		fmt.Sprintf("总用时    %.1fs", s.TotalDuration.Seconds()),
	}
	if s.Successful > 0 {
		lines = append(lines, fmt.Sprintf("平均用时  %.1fs", s.AvgDuration.Seconds()))
	}
	return strings.Join(lines, "\n")
}
