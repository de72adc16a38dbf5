package ui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/roommesh/internal/mesh"
)

func newTestChat(t *testing.T, send func(string) error) *ChatModel {
	t.Helper()
	m := NewChat(send)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func typeText(m *ChatModel, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestChatSubmitsInput(t *testing.T) {
	var sent []string
	m := newTestChat(t, func(s string) error {
		sent = append(sent, s)
		return nil
	})

	typeText(m, "hello room")
	assert.Equal(t, []string{"hello room"}, sent)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.lines, 1)
	assert.Equal(t, "you", m.lines[0].From)
	assert.Contains(t, m.View(), "hello room")

	typeText(m, "   ")
	assert.Len(t, sent, 1)
}

func TestChatReportsSendFailure(t *testing.T) {
	m := newTestChat(t, func(string) error { return errors.New("not in a room") })
	typeText(m, "hi")
	require.Len(t, m.lines, 1)
	assert.True(t, m.lines[0].System)
	assert.Contains(t, m.lines[0].Text, "not in a room")
}

func TestChatAnnouncesPeers(t *testing.T) {
	m := newTestChat(t, func(string) error { return nil })

	m.Update(SnapshotMsg(mesh.Snapshot{
		Status:    mesh.StatusConnected,
		RoomCode:  "ABCD",
		PeerCount: 1,
		Peers:     map[string]mesh.PeerInfo{"P2": {ID: "P2", Name: "bob", Direct: true}},
	}))
	require.Len(t, m.lines, 1)
	assert.Equal(t, "bob joined", m.lines[0].Text)
	assert.Contains(t, m.header(), "1 peers (1 direct)")
	assert.Contains(t, m.header(), "ABCD")

	m.Update(SnapshotMsg(mesh.Snapshot{Status: mesh.StatusConnected, RoomCode: "ABCD"}))
	require.Len(t, m.lines, 2)
	assert.Equal(t, "bob left", m.lines[1].Text)
}

func TestChatShowsIncomingLines(t *testing.T) {
	m := newTestChat(t, func(string) error { return nil })
	m.Update(ChatLine{From: "bob", Text: "via relay"})
	assert.Contains(t, m.View(), "via relay")
	assert.Contains(t, m.View(), "(relayed)")
}

func TestChatQuits(t *testing.T) {
	m := newTestChat(t, func(string) error { return nil })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestPeerTogglesTable(t *testing.T) {
	m := newTestChat(t, func(string) error { return nil })
	typeText(m, "/peers")
	assert.True(t, m.peers)
	assert.Contains(t, m.View(), "No peers yet")
}
