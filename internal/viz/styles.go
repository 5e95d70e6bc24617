package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Title).MarginBottom(1)
}

func labelStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Width(12)
}

func valueStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Text)
}

func activeStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Warning)
}

func helpStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).MarginTop(1)
}

func panelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(CurrentTheme.Muted).
		Padding(1, 2).
		Width(46)
}

// ProgressBar renders a fraction in [0, 1], colored by how full it is.
func ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	color := CurrentTheme.Error
	if fraction > 0.99 {
		color = CurrentTheme.Success
	} else if fraction > 0.5 {
		color = CurrentTheme.Warning
	}
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}

// SparklineChart renders the last width values as a one-line chart.
func SparklineChart(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int((v - lo) / rng * float64(len(chars)-1))
		b.WriteRune(chars[min(max(idx, 0), len(chars)-1)])
	}
	return lipgloss.NewStyle().Foreground(CurrentTheme.Graph).Render(b.String())
}

func row(label, value string) string {
	return labelStyle().Render(label) + valueStyle().Render(value) + "\n"
}
