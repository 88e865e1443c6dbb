package event

import "github.com/bridgeport-dev/bridgeport/pkg/types"

// StatusData is the payload for server.* lifecycle events.
type StatusData struct {
	Update types.StatusUpdate `json:"update"`
}

// ToolExecutedData is the payload for tool.executed events.
type ToolExecutedData struct {
	CallID     string `json:"callID"`
	Tool       string `json:"tool"`
	DurationMs int64  `json:"durationMs"`
	Err        string `json:"err,omitempty"`
}

// StatusEventType maps a lifecycle status to its event type.
func StatusEventType(status types.ServerStatus) Type {
	switch status {
	case types.StatusStarting:
		return ServerStarting
	case types.StatusRunning:
		return ServerRunning
	case types.StatusError:
		return ServerError
	case types.StatusStopped:
		return ServerStopped
	default:
		return ServerError
	}
}

// SinkFunc adapts the bus to the lifecycle manager's status-sink interface.
func SinkFunc(b *Bus) func(types.StatusUpdate) {
	return func(u types.StatusUpdate) {
		b.Publish(Event{Type: StatusEventType(u.Status), Data: StatusData{Update: u}})
	}
}
