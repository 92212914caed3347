package canary

// State is the supervisor's view of the current canary.
type State int

const (
	Idle State = iota
	Armed
	Confirmed
	// TimedOut means the grace period elapsed and a rollback was attempted.
	TimedOut
	// Expired means the grace period elapsed with nothing to roll back to.
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed_out"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}
