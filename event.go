package persist

import (
	"time"
)

// Event types are handed to the Handler when the lifecycle moves.

// EventSpaceOpened is emitted after a space has been reconciled and is Open.
// Payload restoration and player entry may proceed from here.
type EventSpaceOpened struct {
	Space  *StateSpace
	Report ReconcileReport
	// Settled is PollDone when the space reported settled positions, and
	// PollTimedOut when reconciliation went ahead without that signal.
	Settled PollResult
}

// EventSpaceClosed is emitted once a space has been snapshotted and its
// physical content torn down.
type EventSpaceClosed struct {
	Space  SpaceID
	Report SnapshotReport
}

// EventUnresolved is emitted for every record the reconciler could not bind.
type EventUnresolved struct {
	Space  SpaceID
	Record StateRecord
}

// EventOpenTimeout is emitted when AwaitOpen gives up waiting.
type EventOpenTimeout struct {
	Space  SpaceID
	Waited time.Duration
}
