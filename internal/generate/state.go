package generate

// State names a position in the generation lifecycle. Transitions are
// driven solely by Orchestrator.Run; no state is retried automatically.
type State int

// Lifecycle states, in order of normal progression.
const (
	StateIdle State = iota
	StateRetrieving
	StateBuildingContext
	StateStreaming
	StateFinalizing
	StateComplete
	StateFailed
	StateCancelled
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateBuildingContext:
		return "building_context"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
