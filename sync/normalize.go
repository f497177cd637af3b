// ABOUTME: Normalizes provider events into per-day display records
// ABOUTME: Splits multi-day all-day events into one labeled record per calendar day
package sync

import (
	"fmt"
	"time"

	"github.com/harperreed/daybook/models"
)

const (
	dateLayout   = "2006-01-02"
	clockLayout  = "15:04"
	untitledText = "(No title)"
)

// Normalizer turns provider events into display events.
// Location is where whole-day dates and clock times are interpreted; nil means time.Local.
type Normalizer struct {
	Location *time.Location
}

// Normalize converts events in input order. Events with an unreadable start and
// cancelled events are dropped.
func (n Normalizer) Normalize(events []models.ProviderEvent) []models.DisplayEvent {
	loc := n.location()
	out := make([]models.DisplayEvent, 0, len(events))

	for _, event := range events {
		if event.Status == models.StatusCancelled {
			continue
		}

		start, ok := parseEventTime(event.Start, loc)
		if !ok {
			continue
		}
		end, ok := parseEventTime(event.End, loc)
		if !ok || end.Before(start) {
			end = start
		}

		startDay := startOfDay(start)
		endDay := startOfDay(end)
		allDay := event.Start.DateTime == ""

		if allDay && !startDay.Equal(endDay) {
			out = append(out, expandMultiDay(event, startDay, endDay, daysBetween(startDay, endDay))...)
			continue
		}

		display := baseDisplay(event)
		display.ID = "gcal-" + event.ID
		display.Date = start.Format(dateLayout)
		display.IsAllDay = allDay
		if !allDay {
			display.StartTime = start.Format(clockLayout)
			if event.End.DateTime != "" {
				display.EndTime = end.Format(clockLayout)
			}
		}
		out = append(out, display)
	}

	return out
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

// expandMultiDay emits one record per day in [startDay, endDay).
func expandMultiDay(event models.ProviderEvent, startDay, endDay time.Time, dayCount int) []models.DisplayEvent {
	out := make([]models.DisplayEvent, 0, dayCount)
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		ordinal := daysBetween(startDay, day) + 1
		date := day.Format(dateLayout)

		display := baseDisplay(event)
		display.ID = fmt.Sprintf("gcal-%s-%s", event.ID, date)
		display.Date = date
		display.IsAllDay = true
		display.IsMultiDay = true
		display.DayLabel = fmt.Sprintf("Day %d of %d", ordinal, dayCount)
		out = append(out, display)
	}
	return out
}

func baseDisplay(event models.ProviderEvent) models.DisplayEvent {
	title := event.Title
	if title == "" {
		title = untitledText
	}
	return models.DisplayEvent{
		SourceEventID: event.ID,
		Title:         title,
		Description:   event.Description,
		HTMLLink:      event.HTMLLink,
	}
}

// parseEventTime prefers the precise instant and falls back to local midnight of the date.
func parseEventTime(t models.EventTime, loc *time.Location) (time.Time, bool) {
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.In(loc), true
	}
	if t.Date != "" {
		parsed, err := time.ParseInLocation(dateLayout, t.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts whole calendar days from a to b, rounding partial days up.
// Dates are compared on a UTC grid so DST transitions don't skew the count.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	diff := ub.Sub(ua)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days
}
