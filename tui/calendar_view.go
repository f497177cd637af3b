// ABOUTME: TUI calendar picker view
// ABOUTME: Lists available calendars and selects the one the agenda shows
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const dateLayout = "2006-01-02"

// openPicker switches to the calendar list with the current selection under the cursor.
func (m *Model) openPicker() {
	m.calendars = m.orch.Calendars()
	m.cursor = 0
	selected := m.orch.State().SelectedCalendarID
	for i, cal := range m.calendars {
		if cal.ID == selected {
			m.cursor = i
			break
		}
	}
	m.viewMode = ViewCalendars
}

func (m Model) renderCalendarView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Select Calendar"))
	s.WriteString("\n\n")

	if len(m.calendars) == 0 {
		s.WriteString(mutedStyle.Render("No calendars found."))
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("Esc: Back • q: Quit"))
		return s.String()
	}

	selected := m.orch.State().SelectedCalendarID
	for i, cal := range m.calendars {
		var row strings.Builder
		if i == m.cursor {
			row.WriteString("▶ ")
		} else {
			row.WriteString("  ")
		}

		name := cal.Name
		if cal.Primary {
			name += " (primary)"
		}
		if i == m.cursor {
			row.WriteString(selectedStyle.Render(name))
		} else {
			row.WriteString(name)
		}

		if cal.ID == selected {
			row.WriteString(connectedStyle.Render("  ✓ current"))
		}
		if !cal.CanWrite() {
			row.WriteString(mutedStyle.Render("  read-only"))
		}

		s.WriteString(row.String())
		s.WriteString("\n")
	}

	s.WriteString(m.renderStatusLine())
	s.WriteString(helpStyle.Render(strings.Join([]string{
		"↑/↓: Move",
		"Enter: Select",
		"Esc: Back",
		"q: Quit",
	}, " • ")))
	return s.String()
}

func (m Model) handleCalendarKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.calendars)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor >= len(m.calendars) {
			return m, nil
		}
		m.busy = true
		m.busyLabel = fmt.Sprintf("Switching to %s...", m.calendars[m.cursor].Name)
		m.events = nil
		return m, tea.Batch(m.spinner.Tick, m.selectCalendar(m.calendars[m.cursor]))
	case "esc":
		m.viewMode = ViewAgenda
	}

	return m, nil
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
