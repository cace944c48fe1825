package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OfflinePrefix marks session ids generated locally when the database is unavailable
const OfflinePrefix = "offline-"

// SessionStatus represents the current state of a session
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress" // Trials generated, answers being collected
	SessionCompleted  SessionStatus = "completed"   // Every trial answered and scored
	SessionAbandoned  SessionStatus = "abandoned"   // Never finished within the session TTL
)

// Session represents one run of the survey by one user
type Session struct {
	ID             string        `json:"id"`
	Offline        bool          `json:"offline"`
	Status         SessionStatus `json:"status"`
	DeviceInfo     DeviceInfo    `json:"device_info"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	TotalQuestions int           `json:"total_questions"`
	CorrectCount   int           `json:"correct_count"`
	Score          *int          `json:"score,omitempty"`
	Percentile     *int          `json:"percentile,omitempty"`
	Analysis       *Analysis     `json:"analysis,omitempty"`
}

// IsTerminal returns true if the session is in a final state
func (s *Session) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionAbandoned
}

// IsOfflineID reports whether the id was generated locally
func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, OfflinePrefix)
}

// NewOfflineID builds a local session id: the start time in unix
// milliseconds followed by a random UUID
func NewOfflineID(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", OfflinePrefix, now.UnixMilli(), uuid.NewString())
}

// SessionState is the cached working copy of a session: its metadata and
// the trial list the user is walking through
type SessionState struct {
	Session Session `json:"session"`
	Trials  []Trial `json:"trials"`
}

// Trial returns the trial with the given id
func (s *SessionState) Trial(id int) (Trial, bool) {
	for _, t := range s.Trials {
		if t.ID == id {
			return t, true
		}
	}
	return Trial{}, false
}

// Finalization is what gets written back when a session completes
type Finalization struct {
	CompletedAt time.Time
	Result      *Result
}
