package persist

// SpaceState is the lifecycle state of a StateSpace.
// Sub-spaces move Unopened → Opening → Open → Closing → Unopened.
// The main world is always Open.
type SpaceState int

const (
	// Unopened spaces have no physical content loaded. Their last snapshot,
	// if any, lives in the save data.
	Unopened SpaceState = iota

	// Opening spaces are streaming in. Entities inside are not reliably
	// positioned yet and must not be reconciled.
	Opening

	// Open spaces have been reconciled and are live.
	Open

	// Closing spaces have been snapshotted and are being torn down.
	Closing
)

// String returns the string representation of the state.
func (s SpaceState) String() string {
	switch s {
	case Unopened:
		return "Unopened"
	case Opening:
		return "Opening"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Active reports whether the state occupies the single sub-space slot.
func (s SpaceState) Active() bool {
	return s == Opening || s == Open
}

// PollResult is the outcome of one step of a bounded poll.
type PollResult int

const (
	// PollPending means the condition is not met yet and time remains.
	PollPending PollResult = iota

	// PollDone means the condition was met.
	PollDone

	// PollTimedOut means the poll gave up. Callers proceed anyway.
	PollTimedOut
)

// String returns the string representation of the poll result.
func (r PollResult) String() string {
	switch r {
	case PollPending:
		return "Pending"
	case PollDone:
		return "Done"
	case PollTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}
