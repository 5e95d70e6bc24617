package viz

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/wbqp/internal/wbc"
)

// Theme is the color scheme of the monitor.
type Theme struct {
	Name    string
	Title   lipgloss.Color
	Robot   lipgloss.Color
	Force   lipgloss.Color
	Graph   lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

var (
	ThemeLab = Theme{
		Name:    "lab",
		Title:   lipgloss.Color("#00d7ff"),
		Robot:   lipgloss.Color("#e4e4e4"),
		Force:   lipgloss.Color("#ffaf00"),
		Graph:   lipgloss.Color("#5fffaf"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#6c6c6c"),
		Success: lipgloss.Color("#5fff5f"),
		Warning: lipgloss.Color("#ffd700"),
		Error:   lipgloss.Color("#ff5f5f"),
	}

	ThemeRetro = Theme{
		Name:    "retro",
		Title:   lipgloss.Color("#00ff00"),
		Robot:   lipgloss.Color("#00cc00"),
		Force:   lipgloss.Color("#88ff88"),
		Graph:   lipgloss.Color("#00ff00"),
		Text:    lipgloss.Color("#00ff00"),
		Muted:   lipgloss.Color("#005500"),
		Success: lipgloss.Color("#88ff88"),
		Warning: lipgloss.Color("#ffff00"),
		Error:   lipgloss.Color("#ff0000"),
	}

	ThemeMinimal = Theme{
		Name:    "minimal",
		Title:   lipgloss.Color("#ffffff"),
		Robot:   lipgloss.Color("#cccccc"),
		Force:   lipgloss.Color("#0088ff"),
		Graph:   lipgloss.Color("#cccccc"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#888888"),
		Success: lipgloss.Color("#00ff00"),
		Warning: lipgloss.Color("#ffaa00"),
		Error:   lipgloss.Color("#ff0000"),
	}

	CurrentTheme = ThemeLab

	Themes = []Theme{
		ThemeLab,
		ThemeRetro,
		ThemeMinimal,
	}
)

// GetTheme returns a theme by name, falling back to the default.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeLab
}

func SetTheme(name string) {
	CurrentTheme = GetTheme(name)
}

// NextTheme switches to the theme after the current one.
func NextTheme() {
	for i, t := range Themes {
		if t.Name == CurrentTheme.Name {
			CurrentTheme = Themes[(i+1)%len(Themes)]
			return
		}
	}
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

// StatusColor maps a cycle status onto the theme.
func (t Theme) StatusColor(s wbc.Status) lipgloss.Color {
	switch s {
	case wbc.StatusSuccess:
		return t.Success
	case wbc.StatusSolverUnavailable, wbc.StatusInputInvalid:
		return t.Warning
	default:
		return t.Error
	}
}
