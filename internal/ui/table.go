package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/roommesh/internal/mesh"
)

// PeerTableView renders the peers of a snapshot, ordered by id.
func PeerTableView(snap mesh.Snapshot) string {
	if len(snap.Peers) == 0 {
		return MutedStyle.Render("No peers yet")
	}

	peers := make([]mesh.PeerInfo, 0, len(snap.Peers))
	for _, p := range snap.Peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	var rows [][]string
	for _, p := range peers {
		rows = append(rows, []string{truncate(p.Name, 24), shortID(p.ID), p.State, PathLabel(p.Direct)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Peer", "State", "Path").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// PathLabel names the path messages to a peer currently take.
func PathLabel(direct bool) string {
	if direct {
		return IconDirect + " direct"
	}
	return IconRelay + " relay"
}

// RoomRow is one line of the relay's room listing.
type RoomRow struct {
	Code    string `json:"code"`
	Members int    `json:"members"`
}

// RoomsTableView renders the relay's open rooms.
func RoomsTableView(rooms []RoomRow) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(prettytable.Row{"#", "Room", "Members"})

	total := 0
	for i, r := range rooms {
		t.AppendRow(prettytable.Row{i + 1, r.Code, r.Members})
		total += r.Members
	}
	t.AppendFooter(prettytable.Row{"", fmt.Sprintf("%d rooms", len(rooms)), total})
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return t.Render()
}

// RoomBanner announces a room code to share.
func RoomBanner(code string) string {
	content := fmt.Sprintf("%s Room ready\n\n%s Code:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(code),
		MutedStyle.Render("roommesh join "+code),
	)
	return SuccessBoxStyle.Render(content)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return truncate(id, 8)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
