package registry

import (
	"time"

	"github.com/dshills/codeintel/internal/provider"
)

var transitions = map[provider.Status][]provider.Status{
	provider.StatusStopped:    {provider.StatusStarting},
	provider.StatusStarting:   {provider.StatusRunning, provider.StatusDown, provider.StatusStopped},
	provider.StatusRunning:    {provider.StatusRestarting, provider.StatusStopped},
	provider.StatusRestarting: {provider.StatusRunning, provider.StatusDown, provider.StatusStopped},
	provider.StatusDown:       {provider.StatusStarting, provider.StatusStopped},
}

// ValidTransition reports whether from -> to is allowed.
func ValidTransition(from, to provider.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Event reports a status change.
type Event struct {
	Name string
	From provider.Status
	To   provider.Status

	// AttemptsLeft is the restart budget after the change.
	AttemptsLeft int

	// Err is the cause for transitions into Restarting or Down.
	Err error

	Time time.Time
}

// IsDown reports whether the event is the user-visible "provider down"
// signal.
func (e Event) IsDown() bool {
	return e.To == provider.StatusDown
}

// Info is a snapshot of one provider entry.
type Info struct {
	Name         string
	Status       provider.Status
	Languages    []string
	AttemptsLeft int
	Since        time.Time
	Restarts     int
}
