package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vadcap/capture"
	"vadcap/vad"
)

// TUI message types
type StatusMsg capture.Status
type tickMsg time.Time

const meterWidth = 40

type tuiModel struct {
	frame      int
	state      vad.State
	level      float64 // smoothed buffer peak, 0..1
	peakLevel  float64 // peak since the last utterance started
	segments   int
	frames     int64
	sampleRate int
	deviceLine string
	width      int
	height     int
}

// Pre-computed meter cell styles, green to red
var (
	meterColors = []string{"28", "34", "40", "76", "112", "148", "184", "220", "214", "208", "202", "196"}
	meterStyles = make([]lipgloss.Style, len(meterColors))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

func init() {
	for i, c := range meterColors {
		meterStyles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
}

func NewTUIProgram(device string, sampleRate int) *tea.Program {
	m := tuiModel{
		sampleRate: sampleRate,
		deviceLine: "mic: " + device,
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

// forwardStatus hands loop snapshots to the program until the loop ends.
func forwardStatus(p *tea.Program, status <-chan capture.Status, done <-chan struct{}) {
	for {
		select {
		case s := <-status:
			p.Send(StatusMsg(s))
		case <-done:
			return
		}
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		// Let the meter fall when no status arrives.
		m.level *= 0.85
		return m, tuiTick()

	case StatusMsg:
		if msg.State == vad.Recording && m.state != vad.Recording {
			m.peakLevel = 0
		}
		m.state = msg.State
		m.level = max(m.level*0.6+msg.Level*0.4, msg.Level)
		m.peakLevel = max(m.peakLevel, msg.Level)
		m.segments = msg.Segments
		m.frames = msg.Frames
	}
	return m, nil
}

func (m tuiModel) elapsed() time.Duration {
	if m.sampleRate <= 0 {
		return 0
	}
	return time.Duration(m.frames) * time.Second / time.Duration(m.sampleRate)
}

func renderMeter(level float64) string {
	n := int(level*meterWidth + 0.5)
	n = min(max(n, 0), meterWidth)
	var b strings.Builder
	for i := range meterWidth {
		if i >= n {
			b.WriteString(emptyStyle.Render("▏"))
			continue
		}
		b.WriteString(meterStyles[i*len(meterStyles)/meterWidth].Render("█"))
	}
	return b.String()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	// Status line
	if m.state == vad.Recording {
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Render(fmt.Sprintf("● UTTERANCE #%d", m.segments))
		lines = append(lines, status)
	} else {
		dot := "○"
		if m.frame%10 < 5 {
			dot = "◌"
		}
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render(dot + " LISTENING")
		lines = append(lines, status)
	}

	lines = append(lines, "", renderMeter(m.level), "")

	info := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	lines = append(lines, info.Render(fmt.Sprintf("archive  %s", m.elapsed().Truncate(100*time.Millisecond))))
	lines = append(lines, info.Render(fmt.Sprintf("segments %d", m.segments)))
	if m.state == vad.Recording {
		lines = append(lines, info.Render(fmt.Sprintf("peak     %.0f%%", m.peakLevel*100)))
	}

	if m.deviceLine != "" {
		lines = append(lines, "", lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render(m.deviceLine))
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	lines = append(lines, "", boldStyle.Render("q")+helpStyle.Render(" to stop"))
	lines = append(lines, helpStyle.Render("vadcap "+version))

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(strings.Join(lines, "\n"))
}
