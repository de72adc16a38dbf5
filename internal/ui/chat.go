package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/roommesh/internal/mesh"
)

// ChatLine is one line in the chat log. Send it to the program to append.
type ChatLine struct {
	From   string
	Text   string
	Direct bool
	System bool
	At     time.Time
}

// SnapshotMsg carries a coordinator snapshot into the program.
type SnapshotMsg mesh.Snapshot

const (
	headerHeight = 2
	footerHeight = 3
)

// ChatModel is the room chat screen.
type ChatModel struct {
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	send  func(text string) error
	lines []ChatLine
	snap  mesh.Snapshot
	peers bool

	ready    bool
	quitting bool
}

// NewChat creates the chat screen. send is called with every line the
// user submits.
func NewChat(send func(text string) error) *ChatModel {
	input := textinput.New()
	input.Placeholder = "Say something, /peers to toggle the peer list, esc to leave"
	input.CharLimit = 1024
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ChatModel{
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  s,
		send:     send,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-headerHeight-footerHeight)
		m.input.Width = max(10, msg.Width-4)
		m.ready = true
		m.refresh()

	case ChatLine:
		m.appendLine(msg)

	case SnapshotMsg:
		m.applySnapshot(mesh.Snapshot(msg))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	// Printable keys belong to the input, not the viewport's key map.
	if key, ok := msg.(tea.KeyMsg); !ok || key.Type == tea.KeyPgUp || key.Type == tea.KeyPgDown {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	switch text {
	case "":
		return
	case "/peers":
		m.peers = !m.peers
		m.refresh()
		return
	}

	if err := m.send(text); err != nil {
		m.appendLine(ChatLine{System: true, Text: "not sent: " + err.Error()})
		return
	}
	m.appendLine(ChatLine{From: "you", Text: text})
}

func (m *ChatModel) appendLine(line ChatLine) {
	if line.At.IsZero() {
		line.At = time.Now()
	}
	m.lines = append(m.lines, line)
	m.refresh()
}

// applySnapshot records the new state and announces arrivals and
// departures.
func (m *ChatModel) applySnapshot(next mesh.Snapshot) {
	prev := m.snap
	m.snap = next

	var events []ChatLine
	for id, p := range next.Peers {
		if _, ok := prev.Peers[id]; !ok {
			events = append(events, ChatLine{System: true, Text: displayName(p) + " joined"})
		}
	}
	for id, p := range prev.Peers {
		if _, ok := next.Peers[id]; !ok {
			events = append(events, ChatLine{System: true, Text: displayName(p) + " left"})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Text < events[j].Text })
	if next.Error != "" && next.Error != prev.Error {
		events = append(events, ChatLine{System: true, Text: next.Error})
	}

	for _, ev := range events {
		m.appendLine(ev)
	}
	m.refresh()
}

func (m *ChatModel) refresh() {
	var b strings.Builder
	if m.peers {
		b.WriteString(PeerTableView(m.snap))
		b.WriteString("\n\n")
	}
	for _, line := range m.lines {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func renderLine(line ChatLine) string {
	stamp := MutedStyle.Render(line.At.Format("15:04"))
	if line.System {
		return fmt.Sprintf("%s %s", stamp, MutedStyle.Render("· "+line.Text))
	}
	via := ""
	if line.From != "you" && !line.Direct {
		via = MutedStyle.Render(" (relayed)")
	}
	return fmt.Sprintf("%s %s%s %s", stamp, SenderStyle.Render(line.From), via, line.Text)
}

func displayName(p mesh.PeerInfo) string {
	if p.Name != "" {
		return p.Name
	}
	return shortID(p.ID)
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return fmt.Sprintf("%s Starting...", m.spinner.View())
	}
	return m.header() + "\n\n" + m.viewport.View() + "\n\n" + m.input.View()
}

func (m *ChatModel) header() string {
	status := string(m.snap.Status)
	if m.snap.Status == mesh.StatusConnecting || m.snap.Status == mesh.StatusDisconnected {
		status = m.spinner.View() + " " + status
	}

	direct := 0
	for _, p := range m.snap.Peers {
		if p.Direct {
			direct++
		}
	}
	return fmt.Sprintf("%s %s  %s  %s %d peers (%d direct)",
		IconRoom, StatusStyle.Render(m.snap.RoomCode),
		status,
		IconPeer, m.snap.PeerCount, direct,
	)
}
