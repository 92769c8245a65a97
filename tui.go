package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"keytap/chord"
	"keytap/keyevent"
)

// TUI message types
type StatusMsg struct{ Text string }
type BackendMsg struct{ Name, Device string }
type KeyEventMsg struct{ Event keyevent.Event }
type CountersMsg struct{ Delivered, Dropped uint64 }
type ChordMsg struct{ Press chord.Press }
type LogMsg struct{ Text string }

const maxRecent = 200

type tuiModel struct {
	status        string
	backend       string
	device        string
	mods          keyevent.Modifiers
	recent        []keyevent.Event // newest last
	keys          int
	repeats       int
	delivered     uint64
	dropped       uint64
	chord         string
	chordCount    int
	notice        string
	width, height int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	modOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Background(lipgloss.Color("214")).Bold(true).Padding(0, 1)
	modOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Padding(0, 1)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	kindStyles   = map[keyevent.Kind]lipgloss.Style{
		keyevent.KeyDown:      lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		keyevent.KeyUp:        lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		keyevent.FlagsChanged: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

var indicatorMods = []struct {
	bit   keyevent.Modifiers
	label string
}{
	{keyevent.ModShift, "SHIFT"},
	{keyevent.ModControl, "CTRL"},
	{keyevent.ModAlt, "ALT"},
	{keyevent.ModMeta, "META"},
	{keyevent.ModCapsLock, "CAPS"},
}

func NewTUIProgram() *tea.Program {
	m := tuiModel{status: "starting"}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case StatusMsg:
		m.status = msg.Text

	case BackendMsg:
		m.backend = msg.Name
		m.device = msg.Device

	case KeyEventMsg:
		m.mods = msg.Event.Modifiers
		m.keys++
		if msg.Event.IsRepeat {
			m.repeats++
		}
		m.recent = append(m.recent, msg.Event)
		if len(m.recent) > maxRecent {
			m.recent = m.recent[len(m.recent)-maxRecent:]
		}

	case CountersMsg:
		m.delivered = msg.Delivered
		m.dropped = msg.Dropped

	case ChordMsg:
		m.chordCount++
		m.chord = fmt.Sprintf("chord: %s %s", msg.Press.Kind, msg.Press.Duration.Round(time.Millisecond))

	case LogMsg:
		m.notice = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string
	lines = append(lines, titleStyle.Render("keytap"))

	// Status line
	if m.status == "running" {
		lines = append(lines, runningStyle.Render("● RUNNING"))
	} else {
		lines = append(lines, idleStyle.Render("○ "+strings.ToUpper(m.status)))
	}

	if m.backend != "" {
		backend := "backend: " + m.backend
		if m.device != "" {
			backend += " (" + m.device + ")"
		}
		lines = append(lines, dimStyle.Render(backend))
	}

	lines = append(lines, renderModifiers(m.mods))
	lines = append(lines, dimStyle.Render(fmt.Sprintf("records %d  repeats %d  delivered %d  dropped %d",
		m.keys, m.repeats, m.delivered, m.dropped)))
	if m.chord != "" {
		lines = append(lines, runningStyle.Render(fmt.Sprintf("%s (#%d)", m.chord, m.chordCount)))
	}

	if m.notice != "" {
		for _, l := range wrapText(m.notice, max(m.width-2, 1)) {
			lines = append(lines, warnStyle.Render(l))
		}
	}
	lines = append(lines, "")

	// Recent records, newest first, as many as fit.
	room := m.height - len(lines) - 1
	for i := len(m.recent) - 1; i >= 0 && room > 0; i-- {
		lines = append(lines, renderRecord(m.recent[i]))
		room--
	}

	lines = append(lines, dimStyle.Render("q: quit"))
	return strings.Join(lines, "\n")
}

func renderModifiers(mods keyevent.Modifiers) string {
	parts := make([]string, 0, len(indicatorMods))
	for _, im := range indicatorMods {
		if mods.Has(im.bit) {
			parts = append(parts, modOnStyle.Render(im.label))
		} else {
			parts = append(parts, modOffStyle.Render(im.label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderRecord(ev keyevent.Event) string {
	style, ok := kindStyles[ev.Kind]
	if !ok {
		style = dimStyle
	}
	kind := style.Render(fmt.Sprintf("%-12s", ev.Kind))
	line := fmt.Sprintf("%s %5d  %s", kind, ev.KeyCode, ev.Modifiers)
	if ev.IsRepeat {
		line += dimStyle.Render("  (repeat)")
	}
	return line
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func logToTUI(format string, args ...any) {
	tuiSend(LogMsg{Text: fmt.Sprintf(format, args...)})
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// tuiSink forwards monitor events to the running program.
type tuiSink struct{}

func (tuiSink) Status(text string) { tuiSend(StatusMsg{Text: text}) }
func (tuiSink) Backend(name, device string) { tuiSend(BackendMsg{Name: name, Device: device}) }
func (tuiSink) Key(ev keyevent.Event) { tuiSend(KeyEventMsg{Event: ev}) }
func (tuiSink) Counters(delivered, dropped uint64) { tuiSend(CountersMsg{Delivered: delivered, Dropped: dropped}) }
func (tuiSink) Chord(p chord.Press) { tuiSend(ChordMsg{Press: p}) }
func (tuiSink) Notice(text string) { logToTUI("%s", text) }
