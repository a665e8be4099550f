// Package tui renders a live recognition dashboard with bubbletea.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/andresmejia3/facelookup/internal/recognize"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FrameMsg delivers one processed frame to the dashboard.
type FrameMsg struct {
	Frame recognize.Frame
}

// SessionEndedMsg is sent once when the recognition loop returns.
type SessionEndedMsg struct {
	Err error
}

// cancelHolder shares the session's cancel func across model copies.
type cancelHolder struct {
	cancel context.CancelFunc
}

// DashboardModel is the bubbletea model for `recognize --ui tui`.
type DashboardModel struct {
	sessionID string
	source    string
	threshold float64

	spinner    spinner.Model
	frames     int
	lastIndex  int
	totalFaces int
	current    []recognize.Detection

	cancelCtx *cancelHolder
	err       error
	ended     bool
	quitting  bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	matchStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	unknownStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// NewDashboard creates the model. cancel stops the recognition loop when the user quits.
func NewDashboard(sessionID, source string, threshold float64, cancel context.CancelFunc) DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return DashboardModel{
		sessionID: sessionID,
		source:    source,
		threshold: threshold,
		spinner:   s,
		cancelCtx: &cancelHolder{cancel: cancel},
	}
}

// Init implements tea.Model.
func (m DashboardModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			if m.cancelCtx.cancel != nil {
				m.cancelCtx.cancel()
			}
			return m, tea.Quit
		}

	case FrameMsg:
		m.frames++
		m.lastIndex = msg.Frame.Index
		m.totalFaces += len(msg.Frame.Detections)
		m.current = msg.Frame.Detections
		return m, nil

	case SessionEndedMsg:
		m.ended = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.ended {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Err returns the error the recognition loop ended with, if any.
func (m DashboardModel) Err() error { return m.err }

// View implements tea.Model.
func (m DashboardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("facelookup"))
	b.WriteString(metaStyle.Render(fmt.Sprintf("  session %s  source %s  threshold %.2f", m.sessionID, m.source, m.threshold)))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	case m.ended:
		b.WriteString(metaStyle.Render("Session ended."))
		b.WriteString("\n")
	case m.frames == 0:
		b.WriteString(m.spinner.View() + " Waiting for the first frame...\n")
	default:
		b.WriteString(m.spinner.View() + fmt.Sprintf(" frame %d  (%d processed, %d faces seen)\n", m.lastIndex, m.frames, m.totalFaces))
	}

	if m.frames > 0 && len(m.current) == 0 && !m.ended {
		b.WriteString(metaStyle.Render("No faces in view."))
		b.WriteString("\n")
	}
	for _, d := range m.current {
		b.WriteString(renderPanel(d.Result))
		b.WriteString("\n")
	}

	if !m.ended && !m.quitting {
		b.WriteString(metaStyle.Render("\nq to quit"))
		b.WriteString("\n")
	}
	return b.String()
}

func renderPanel(r recognize.Result) string {
	name := unknownStyle.Render(r.Label)
	if r.Matched {
		name = matchStyle.Render(r.Label)
	}
	dist := "-"
	if !math.IsInf(r.Distance, 1) {
		dist = fmt.Sprintf("%.3f", r.Distance)
	}
	lines := []string{
		"Name:     " + name,
		"Age:      " + r.Age,
		"Job:      " + r.Job,
		"Location: " + r.Location,
		"E-mail:   " + r.Email,
		metaStyle.Render("distance " + dist),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
