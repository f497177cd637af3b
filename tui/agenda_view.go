// ABOUTME: TUI agenda view for the selected calendar
// ABOUTME: Renders the connection badge, one week of events by day, and recent notices
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/daybook/models"
)

const maxNotices = 3

func (m Model) renderAgendaView() string {
	var s strings.Builder
	state := m.orch.State()

	s.WriteString(titleStyle.Render("Daybook"))
	s.WriteString("  ")
	s.WriteString(m.renderBadge(state))
	s.WriteString("\n\n")

	if !m.orch.IsConfigured() {
		s.WriteString(errorStyle.Render("Google Calendar is not configured."))
		s.WriteString("\n")
		s.WriteString(mutedStyle.Render("Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET, then restart."))
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("q: Quit"))
		return s.String()
	}

	if !state.HasToken() {
		s.WriteString(mutedStyle.Render("Not connected. Press c to connect Google Calendar."))
		s.WriteString("\n")
		s.WriteString(m.renderStatusLine())
		s.WriteString(m.renderNotices())
		s.WriteString(helpStyle.Render("c: Connect • q: Quit"))
		return s.String()
	}

	weekEnd := m.weekStart.AddDate(0, 0, 6)
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s  •  %s - %s",
		calendarName(state), m.weekStart.Format("Jan 2"), weekEnd.Format("Jan 2"))))
	s.WriteString("\n")

	s.WriteString(m.renderWeek())
	s.WriteString(m.renderStatusLine())
	s.WriteString(m.renderNotices())
	s.WriteString(m.renderAgendaHelp())
	return s.String()
}

func (m Model) renderBadge(state models.ConnectionState) string {
	switch state.Phase {
	case models.PhaseConnected:
		badge := connectedStyle.Render("● Connected")
		if state.LastSyncAt != nil {
			badge += mutedStyle.Render(" • Synced " + formatTimeSince(*state.LastSyncAt))
		}
		return badge
	case models.PhaseSyncing:
		return syncingStyle.Render("⟳ Syncing")
	case models.PhaseConnecting:
		return syncingStyle.Render("⟳ Connecting")
	case models.PhaseError:
		return errorStyle.Render("✗ Error")
	default:
		return mutedStyle.Render("○ Disconnected")
	}
}

func (m Model) renderWeek() string {
	var s strings.Builder
	byDate := make(map[string][]models.DisplayEvent)
	for _, e := range m.events {
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	today := m.now().In(m.loc).Format(dateLayout)
	for i := 0; i < 7; i++ {
		day := m.weekStart.AddDate(0, 0, i)
		key := day.Format(dateLayout)

		label := day.Format("Mon Jan 2")
		s.WriteString("\n")
		if key == today {
			s.WriteString(todayStyle.Render(label + " (today)"))
		} else {
			s.WriteString(label)
		}
		s.WriteString("\n")

		events := byDate[key]
		if len(events) == 0 {
			s.WriteString(mutedStyle.Render("  No events"))
			s.WriteString("\n")
			continue
		}
		for _, e := range events {
			s.WriteString("  ")
			s.WriteString(timeStyle.Render(eventWhen(e)))
			s.WriteString(eventTitle(e))
			s.WriteString("\n")
		}
	}
	return s.String()
}

func (m Model) renderStatusLine() string {
	switch {
	case m.busy:
		return "\n" + m.spinner.View() + " " + m.busyLabel + "\n"
	case m.status != "":
		return "\n" + mutedStyle.Render(m.status) + "\n"
	}
	return ""
}

func (m Model) renderNotices() string {
	notices := m.orch.Notices()
	if len(notices) == 0 {
		return ""
	}
	if len(notices) > maxNotices {
		notices = notices[len(notices)-maxNotices:]
	}

	var s strings.Builder
	s.WriteString("\n")
	for _, n := range notices {
		line := fmt.Sprintf("[%s] %s", n.CreatedAt.In(m.loc).Format("15:04"), n.Message)
		switch n.Level {
		case models.NoticeError:
			s.WriteString(errorStyle.Render("✗ " + line))
		case models.NoticeWarn:
			s.WriteString(syncingStyle.Render("! " + line))
		default:
			s.WriteString(mutedStyle.Render("✓ " + line))
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) renderAgendaHelp() string {
	help := []string{
		"←/→: Week",
		"t: Today",
		"r: Reload",
		"s: Calendars",
		"d: Disconnect",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleAgendaKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state := m.orch.State()

	switch msg.String() {
	case "c":
		if state.HasToken() || !m.orch.IsConfigured() {
			return m, nil
		}
		m.busy = true
		m.busyLabel = "Waiting for Google sign-in in your browser..."
		return m, tea.Batch(m.spinner.Tick, m.connect())
	case "d":
		if !state.HasToken() {
			return m, nil
		}
		m.busy = true
		m.busyLabel = "Disconnecting..."
		return m, tea.Batch(m.spinner.Tick, m.disconnect())
	case "s":
		if !state.HasToken() {
			return m, nil
		}
		if len(m.orch.Calendars()) > 0 {
			m.openPicker()
			return m, nil
		}
		m.busy = true
		m.busyLabel = "Loading calendars..."
		return m, tea.Batch(m.spinner.Tick, m.loadCalendars())
	}

	if !state.HasToken() {
		return m, nil
	}

	switch msg.String() {
	case "right", "l", "n":
		m.weekStart = m.weekStart.AddDate(0, 0, 7)
	case "left", "h", "p":
		m.weekStart = m.weekStart.AddDate(0, 0, -7)
	case "t":
		m.weekStart = startOfWeek(m.now().In(m.loc))
	case "r":
		// Keep showing the current week while it reloads.
		return m.startFetch()
	default:
		return m, nil
	}

	m.events = nil
	return m.startFetch()
}

func calendarName(state models.ConnectionState) string {
	if state.SelectedCalendarName != "" {
		return state.SelectedCalendarName
	}
	if state.SelectedCalendarID != "" {
		return state.SelectedCalendarID
	}
	return "No calendar selected"
}

func eventWhen(e models.DisplayEvent) string {
	if e.IsAllDay {
		return "All day"
	}
	if e.EndTime == "" {
		return e.StartTime
	}
	return e.StartTime + "-" + e.EndTime
}

func eventTitle(e models.DisplayEvent) string {
	if e.DayLabel == "" {
		return e.Title
	}
	return e.Title + mutedStyle.Render(" ("+e.DayLabel+")")
}
