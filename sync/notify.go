// ABOUTME: User-facing notices emitted by the connection orchestrator
// ABOUTME: Bounded in-memory log of recent notices with ULID identifiers
package sync

import (
	gosync "sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/daybook/models"
)

const defaultNoticeCapacity = 20

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(level models.NoticeLevel, message string)
}

// NoticeLog keeps the most recent notices, oldest first.
type NoticeLog struct {
	mu       gosync.Mutex
	capacity int
	notices  []models.Notice
	now      func() time.Time
}

// NewNoticeLog creates a log holding up to capacity notices.
func NewNoticeLog(capacity int) *NoticeLog {
	if capacity <= 0 {
		capacity = defaultNoticeCapacity
	}
	return &NoticeLog{capacity: capacity, now: time.Now}
}

// Notify appends a notice, dropping the oldest when full. Empty messages are ignored.
func (l *NoticeLog) Notify(level models.NoticeLevel, message string) {
	if message == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.notices = append(l.notices, models.Notice{
		ID:        ulid.Make().String(),
		Level:     level,
		Message:   message,
		CreatedAt: now,
	})
	if over := len(l.notices) - l.capacity; over > 0 {
		l.notices = append([]models.Notice(nil), l.notices[over:]...)
	}
}

// Recent returns a copy of the held notices.
func (l *NoticeLog) Recent() []models.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Notice(nil), l.notices...)
}

// Latest returns the newest notice, if any.
func (l *NoticeLog) Latest() (models.Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notices) == 0 {
		return models.Notice{}, false
	}
	return l.notices[len(l.notices)-1], true
}

// Clear drops all notices.
func (l *NoticeLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = nil
}
