package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelsec/huntkit/pkg/pivot"
)

// browseModel is the BubbleTea model for the interactive pivot browser.
// Left/right cycles entity types, up/down moves through that entity's
// pivot functions, the viewport shows details for the selection.
type browseModel struct {
	pivot       *pivot.Pivot
	entityTypes []string

	viewport viewport.Model
	ready    bool
	width    int
	height   int

	entityIdx int
	cursor    int
	showHelp  bool

	titleStyle    lipgloss.Style
	selectedStyle lipgloss.Style
	dimStyle      lipgloss.Style
	helpStyle     lipgloss.Style
}

func newBrowseModel(p *pivot.Pivot) *browseModel {
	return &browseModel{
		pivot:         p,
		entityTypes:   p.EntityTypes(),
		titleStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		selectedStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		dimStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		helpStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 3
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetContent(m.renderList())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left", "h":
			if len(m.entityTypes) > 0 {
				m.entityIdx = (m.entityIdx - 1 + len(m.entityTypes)) % len(m.entityTypes)
				m.cursor = 0
			}
		case "right", "l":
			if len(m.entityTypes) > 0 {
				m.entityIdx = (m.entityIdx + 1) % len(m.entityTypes)
				m.cursor = 0
			}
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.currentPivots())-1 {
				m.cursor++
			}
		case "?":
			m.showHelp = !m.showHelp
		}
		if m.ready {
			m.viewport.SetContent(m.renderList())
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m browseModel) currentPivots() []*pivot.BoundQuery {
	if len(m.entityTypes) == 0 {
		return nil
	}
	return m.pivot.Lookup(m.entityTypes[m.entityIdx])
}

func (m browseModel) renderList() string {
	pivots := m.currentPivots()
	if len(pivots) == 0 {
		return m.dimStyle.Render("no pivot functions for this entity")
	}

	var b strings.Builder
	for i, bound := range pivots {
		line := fmt.Sprintf("%s  (%s.%s, %s)", bound.Name, bound.Family, bound.Query, bound.Environment)
		if i == m.cursor {
			b.WriteString(m.selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	if m.cursor < len(pivots) {
		sel := pivots[m.cursor]
		b.WriteString("\n")
		b.WriteString(m.dimStyle.Render(fmt.Sprintf(
			"entity: %s | query: %s.%s | environment: %s",
			sel.Entity, sel.Family, sel.Query, sel.Environment)))
	}
	return b.String()
}

func (m browseModel) View() string {
	if !m.ready {
		return "loading..."
	}

	entity := "none"
	if len(m.entityTypes) > 0 {
		entity = m.entityTypes[m.entityIdx]
	}
	header := m.titleStyle.Render("huntkit pivot browser") +
		"  " + m.dimStyle.Render(fmt.Sprintf("entity: %s (%d/%d)", entity, m.entityIdx+1, len(m.entityTypes)))

	footer := m.helpStyle.Render("←/→ entity  ↑/↓ pivot  ? help  q quit")
	if m.showHelp {
		footer = m.helpStyle.Render(
			"left/right: switch entity type | up/down: select pivot | q/esc: quit\n" +
				"run a pivot with: huntkit run --query <family>.<query> --param <name>=<value>")
	}

	return header + "\n\n" + m.viewport.View() + "\n" + footer
}

func runBrowse(args []string) {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	var queryPaths stringList
	fs.Var(&queryPaths, "query-path", "Additional query definition directory (repeatable)")
	fs.Parse(args)

	p := buildPivot(queryPaths, nil, 1)
	if len(p.EntityTypes()) == 0 {
		log.Fatal("no pivot functions registered")
	}

	program := tea.NewProgram(newBrowseModel(p), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatalf("Browser failed: %v", err)
	}
}
