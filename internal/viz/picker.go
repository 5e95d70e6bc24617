package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/experiment"
)

const (
	stateScenario = iota
	statePreset
	stateLive
)

// defaultPreset runs the base configuration with only the scenario changed.
const defaultPreset = "default"

// Picker selects a scenario and preset, then hands over to the live monitor.
// Esc in the monitor returns to the preset list.
type Picker struct {
	base      *config.Config
	state     int
	cursor    int
	scenarios []string
	presets   []string
	scenario  string
	live      Model
	err       error
}

func NewPicker(base *config.Config) Picker {
	return Picker{
		base:      base,
		state:     stateScenario,
		scenarios: experiment.ListScenarios(),
	}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.state == stateLive {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			p.state, p.cursor = statePreset, 0
			return p, nil
		}
		next, cmd := p.live.Update(msg)
		p.live = next.(Model)
		return p, cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch k.String() {
	case "q", "ctrl+c":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.items())-1 {
			p.cursor++
		}
	case "esc", "backspace":
		if p.state == statePreset {
			p.state, p.cursor, p.err = stateScenario, 0, nil
		}
	case "enter", " ":
		return p.choose()
	}
	return p, nil
}

func (p Picker) items() []string {
	if p.state == statePreset {
		return p.presets
	}
	return p.scenarios
}

func (p Picker) choose() (Picker, tea.Cmd) {
	items := p.items()
	if len(items) == 0 {
		return p, nil
	}
	choice := items[p.cursor]
	if p.state == stateScenario {
		p.scenario = choice
		p.presets = append([]string{defaultPreset}, config.ListPresets(choice)...)
		p.state, p.cursor = statePreset, 0
		return p, nil
	}

	live, err := NewModel(p.Config(choice))
	if err != nil {
		p.err = err
		return p, nil
	}
	p.live, p.state, p.err = live, stateLive, nil
	return p, live.Init()
}

// Config is the configuration the picker runs for preset of the selected
// scenario.
func (p Picker) Config(preset string) *config.Config {
	if cfg := config.GetPreset(p.scenario, preset); cfg != nil {
		return cfg
	}
	cfg := p.base.Clone()
	cfg.Run.Scenario = p.scenario
	return cfg
}

func (p Picker) View() string {
	if p.state == stateLive {
		return p.live.View()
	}

	var s strings.Builder
	title := "WBQP  select scenario"
	if p.state == statePreset {
		title = "WBQP  " + p.scenario + "  select preset"
	}
	s.WriteString(titleStyle().Render(title) + "\n")

	muted := lipgloss.NewStyle().Foreground(CurrentTheme.Muted)
	for i, item := range p.items() {
		desc := ""
		if p.state == stateScenario {
			if sc, err := experiment.GetScenario(item); err == nil {
				desc = sc.Description
			}
		}
		line := fmt.Sprintf("%-20s", item)
		if i == p.cursor {
			s.WriteString(activeStyle().Render("> "+line) + muted.Render(desc) + "\n")
		} else {
			s.WriteString("  " + valueStyle().Render(line) + muted.Render(desc) + "\n")
		}
	}
	if p.err != nil {
		s.WriteString("\n" + lipgloss.NewStyle().Foreground(CurrentTheme.Error).Render(p.err.Error()) + "\n")
	}
	s.WriteString(helpStyle().Render("↑↓:Move  Enter:Select  Esc:Back  Q:Quit"))
	return s.String()
}
