package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/control"
	"github.com/san-kum/wbqp/internal/experiment"
	"github.com/san-kum/wbqp/internal/sim"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 600
	frameRate       = 60

	// shiftStep is how far one key press moves the CoM target.
	shiftStep = 0.01
	// nudgeGain converts a shift step into a manual acceleration change.
	nudgeGain = 10.0
)

var canvasStyle = lipgloss.NewStyle().Padding(1, 2)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model steps a closed-loop session in real time and draws it.
type Model struct {
	cfg     *config.Config
	exp     *experiment.Experiment
	session *sim.Session

	canvas       *Canvas
	view         View
	running      bool
	finished     bool
	showHelp     bool
	stepsPerTick int

	last     sim.Step
	err      error
	comErr   []float64
	solveMs  []float64
	ok       int
	total    int
	paramKey []string
	selected int
}

// NewModel builds the experiment described by cfg and positions it at the
// first cycle.
func NewModel(cfg *config.Config) (Model, error) {
	m := Model{
		cfg:          cfg,
		canvas:       NewCanvas(width, height),
		running:      true,
		stepsPerTick: max(1, int(1/(frameRate*cfg.Run.Dt))),
	}
	if err := m.restart(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// restart rebuilds the experiment from the configuration.
func (m *Model) restart() error {
	exp, err := experiment.New(m.cfg.Clone())
	if err != nil {
		return err
	}
	session, err := exp.GetSimulator().Start(m.cfg.SimConfig())
	if err != nil {
		return err
	}
	m.exp, m.session = exp, session
	m.finished, m.err = false, nil
	m.last = sim.Step{}
	m.comErr = make([]float64, 0, historyCapacity)
	m.solveMs = make([]float64, 0, historyCapacity)
	m.ok, m.total = 0, 0

	m.paramKey, m.selected = nil, 0
	if t, ok := exp.Regulator().(control.Tunable); ok {
		for k := range t.GetParams() {
			m.paramKey = append(m.paramKey, k)
		}
		sort.Strings(m.paramKey)
	}
	return nil
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			if err := m.restart(); err != nil {
				m.err = err
			}
		case "tab":
			m.cycleParam()
		case "up", "k":
			m.adjustParam(1.05)
		case "down", "j":
			m.adjustParam(0.95)
		case "right", "l":
			m.shift(m.horizontal(shiftStep))
		case "left", "h":
			m.shift(m.horizontal(-shiftStep))
		case "w":
			m.shift(r3.Vec{Z: shiftStep})
		case "s":
			m.shift(r3.Vec{Z: -shiftStep})
		case "v":
			m.view = (m.view + 1) % 2
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running && !m.finished {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) horizontal(d float64) r3.Vec {
	if m.view == FrontView {
		return r3.Vec{Y: d}
	}
	return r3.Vec{X: d}
}

// shift moves the CoM target, or the commanded acceleration for the manual
// regulator.
func (m *Model) shift(d r3.Vec) {
	if man, ok := m.exp.Regulator().(*control.Manual); ok {
		man.Nudge(r3.Scale(nudgeGain, d))
		return
	}
	m.exp.Planner().AddShift(d)
}

func (m *Model) cycleParam() {
	if len(m.paramKey) == 0 {
		return
	}
	m.selected = (m.selected + 1) % len(m.paramKey)
}

func (m *Model) adjustParam(factor float64) {
	t, ok := m.exp.Regulator().(control.Tunable)
	if !ok || len(m.paramKey) == 0 {
		return
	}
	key := m.paramKey[m.selected]
	val := t.GetParams()[key]
	if val == 0 {
		val = 1e-3
	}
	t.SetParam(key, val*factor)
}

// step runs the cycles that fit in one frame.
func (m *Model) step() {
	for i := 0; i < m.stepsPerTick && !m.session.Done(); i++ {
		st, err := m.session.Next()
		if err != nil {
			m.err = err
			break
		}
		m.record(st)
	}
	if m.session.Done() {
		m.finished = true
	}
}

func (m *Model) record(st sim.Step) {
	m.last = st
	m.total++
	if st.OK() {
		m.ok++
	}
	target := m.exp.Target(st.Time)
	m.comErr = appendCapped(m.comErr, 1000*r3.Norm(r3.Sub(st.COM, target)))
	m.solveMs = appendCapped(m.solveMs, float64(st.SolveTime.Microseconds())/1000)
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return "STOPPED"
	case m.finished:
		return "FINISHED"
	case !m.running:
		return "PAUSED"
	}
	return "RUNNING"
}

func (m Model) View() string {
	var robotView string
	scene, err := Capture(m.exp.Robot(), m.session.Output(), m.exp.Target(m.session.Time()))
	if err != nil {
		robotView = err.Error()
	} else {
		Render(m.canvas, scene, m.view)
		robotView = lipgloss.NewStyle().Foreground(CurrentTheme.Robot).Render(m.canvas.String())
	}

	var s strings.Builder
	s.WriteString(titleStyle().Render(strings.ToUpper(m.exp.Scenario().Name)) + "\n")
	s.WriteString(fmt.Sprintf("%s  %s view\n\n", m.status(), m.view))
	if len(m.comErr) > 1 {
		chart := asciigraph.Plot(m.comErr, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("CoM error [mm]"))
		s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Graph).Render(chart) + "\n\n")
	}

	s.WriteString(row("Time", fmt.Sprintf("%.3fs", m.session.Time())))
	s.WriteString(row("Cycle", fmt.Sprintf("%d", m.total)))
	statusText := lipgloss.NewStyle().Foreground(CurrentTheme.StatusColor(m.last.Status)).Render(m.last.Status.String())
	s.WriteString(labelStyle().Render("Status") + statusText + "\n")
	s.WriteString(labelStyle().Render("Solve") + valueStyle().Render(fmt.Sprintf("%.3fms ", m.last.SolveTime.Seconds()*1000)) +
		SparklineChart(m.solveMs, 16) + "\n")
	s.WriteString(row("Iterations", fmt.Sprintf("%d", m.last.Iterations)))
	s.WriteString(row("Force", fmt.Sprintf("%.1fN", m.last.ContactForce.Z)))
	s.WriteString(row("Rebuilds", fmt.Sprintf("%d", m.exp.Controller().Rebuilds())))
	if m.total > 0 {
		frac := float64(m.ok) / float64(m.total)
		s.WriteString(labelStyle().Render("Success") + ProgressBar(frac, 16) + fmt.Sprintf(" %.0f%%\n", 100*frac))
	}
	if m.err != nil {
		s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Error).Render(m.err.Error()) + "\n")
	}

	s.WriteString("\nREGULATOR " + m.cfg.Run.Regulator + "\n")
	if t, ok := m.exp.Regulator().(control.Tunable); ok && len(m.paramKey) > 0 {
		params := t.GetParams()
		for i, k := range m.paramKey {
			line := fmt.Sprintf("%-8s %.3f", k, params[k])
			if i == m.selected {
				s.WriteString(activeStyle().Render("> "+line) + "\n")
			} else {
				s.WriteString("  " + labelStyle().Width(0).Render(line) + "\n")
			}
		}
	} else {
		s.WriteString(labelStyle().Render("  (none)") + "\n")
	}
	s.WriteString(helpStyle().Render("─────────────────────\nSP:Pause R:Reset Q:Quit\nT:Theme  V:View  ?:Help\n←→WS:Target ↑↓:Tune"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasStyle.Render(robotView), panelStyle().Render(s.String()))
	if m.showHelp {
		return helpOverlay + "\n\n" + mainView
	}
	return mainView
}

const helpOverlay = `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume             ║
║  R        - Restart scenario         ║
║  Q        - Quit                     ║
║  Tab      - Cycle parameters         ║
║  Up/K     - Increase parameter (+5%) ║
║  Down/J   - Decrease parameter (-5%) ║
║  Left/H   - Move target back         ║
║  Right/L  - Move target forward      ║
║  W/S      - Raise/lower target       ║
║  V        - Side/front view          ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝`
