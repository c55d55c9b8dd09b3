package provider

// Status is a provider lifecycle state.
type Status int

// Provider states.
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusRestarting
	StatusDown
)

// String returns a human-readable state name.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusRestarting:
		return "restarting"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}
