// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Weekly agenda over the calendar connection with a calendar picker and notices
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/daybook/models"
	"github.com/harperreed/daybook/sync"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewAgenda ViewMode = iota
	ViewCalendars
)

// Model is the main bubbletea model
type Model struct {
	orch            *sync.Orchestrator
	loc             *time.Location
	refreshInterval time.Duration
	now             func() time.Time

	viewMode  ViewMode
	weekStart time.Time
	events    []models.DisplayEvent

	// Calendar picker state
	calendars []models.CalendarDescriptor
	cursor    int

	busy      bool
	busyLabel string
	spinner   spinner.Model
	status    string

	// UI state
	width  int
	height int
}

// NewModel creates a new TUI model
func NewModel(o *sync.Orchestrator, loc *time.Location, refreshInterval time.Duration) Model {
	if loc == nil {
		loc = time.Local
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = syncingStyle

	m := Model{
		orch:            o,
		loc:             loc,
		refreshInterval: refreshInterval,
		now:             time.Now,
		viewMode:        ViewAgenda,
		spinner:         s,
		width:           80,
		height:          24,
	}
	m.weekStart = startOfWeek(m.now().In(loc))

	// A restored connection loads the current week on start.
	if state := o.State(); state.HasToken() && state.SelectedCalendarID != "" {
		m.busy = true
		m.busyLabel = "Loading events..."
	}
	return m
}

// Run starts the full-screen program.
func Run(o *sync.Orchestrator, loc *time.Location, refreshInterval time.Duration) error {
	_, err := tea.NewProgram(NewModel(o, loc, refreshInterval), tea.WithAltScreen()).Run()
	return err
}

// Messages delivered by background commands.
type (
	connectDoneMsg    struct{ err error }
	disconnectDoneMsg struct{ err error }
	selectDoneMsg     struct{ err error }
	calendarsMsg      struct{ ok bool }
	refreshTickMsg    struct{}
	refreshDoneMsg    struct{ ok bool }
	eventsLoadedMsg   struct {
		weekStart time.Time
		events    []models.DisplayEvent
		err       error
	}
)

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.scheduleRefresh()}
	if m.busy {
		cmds = append(cmds, m.spinner.Tick, m.fetchWeek(m.weekStart))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = statusFor(msg.err, "Connection failed")
			return m, nil
		}
		m.status = "Connected"
		return m.startFetch()

	case disconnectDoneMsg:
		m.busy = false
		m.calendars = nil
		m.events = nil
		m.viewMode = ViewAgenda
		m.status = "Disconnected"
		if msg.err != nil {
			m.status = "Disconnected with errors: " + msg.err.Error()
		}
		return m, nil

	case calendarsMsg:
		m.busy = false
		if !msg.ok {
			m.status = "Could not load calendars; press c to reconnect"
			return m, nil
		}
		m.openPicker()
		return m, nil

	case selectDoneMsg:
		m.busy = false
		m.viewMode = ViewAgenda
		if msg.err != nil {
			m.status = statusFor(msg.err, "Could not select calendar")
			return m, nil
		}
		return m.startFetch()

	case eventsLoadedMsg:
		if !msg.weekStart.Equal(m.weekStart) {
			// The user paged away while this week was loading.
			return m, nil
		}
		m.busy = false
		if msg.err != nil {
			m.status = statusFor(msg.err, "Could not load events")
			return m, nil
		}
		m.events = msg.events
		m.status = ""
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.refresh(), m.scheduleRefresh())

	case refreshDoneMsg:
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewCalendars:
		return m.renderCalendarView()
	default:
		return m.renderAgendaView()
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	if m.busy {
		return m, nil
	}

	switch m.viewMode {
	case ViewCalendars:
		return m.handleCalendarKeys(msg)
	default:
		return m.handleAgendaKeys(msg)
	}
}

// startFetch loads the current week when a calendar is selected.
func (m Model) startFetch() (tea.Model, tea.Cmd) {
	if m.orch.State().SelectedCalendarID == "" {
		return m, nil
	}
	m.busy = true
	m.busyLabel = "Loading events..."
	return m, tea.Batch(m.spinner.Tick, m.fetchWeek(m.weekStart))
}

func (m Model) fetchWeek(weekStart time.Time) tea.Cmd {
	o := m.orch
	return func() tea.Msg {
		events, err := o.FetchEvents(context.Background(), weekStart, weekStart.AddDate(0, 0, 7))
		return eventsLoadedMsg{weekStart: weekStart, events: events, err: err}
	}
}

func (m Model) connect() tea.Cmd {
	o := m.orch
	return func() tea.Msg {
		return connectDoneMsg{err: o.Connect(context.Background())}
	}
}

func (m Model) disconnect() tea.Cmd {
	o := m.orch
	return func() tea.Msg {
		return disconnectDoneMsg{err: o.Disconnect(context.Background())}
	}
}

func (m Model) loadCalendars() tea.Cmd {
	o := m.orch
	return func() tea.Msg {
		return calendarsMsg{ok: o.RefreshSilently(context.Background())}
	}
}

func (m Model) selectCalendar(cal models.CalendarDescriptor) tea.Cmd {
	o := m.orch
	return func() tea.Msg {
		return selectDoneMsg{err: o.SelectCalendar(context.Background(), cal)}
	}
}

func (m Model) refresh() tea.Cmd {
	o := m.orch
	return func() tea.Msg {
		return refreshDoneMsg{ok: o.RefreshSilently(context.Background())}
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	if m.refreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

// statusFor prefers the user-facing message; cancellation shows fallback text.
func statusFor(err error, fallback string) string {
	if msg := sync.UserMessage(err); msg != "" {
		return msg
	}
	if sync.IsUserCancelled(err) {
		return "Sign-in cancelled"
	}
	return fallback
}

// startOfWeek returns Monday 00:00 of t's week in t's location.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Bold(true)

	todayStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Width(13)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)
