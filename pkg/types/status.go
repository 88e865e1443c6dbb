package types

// ServerStatus is the lifecycle state of the local server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusRunning  ServerStatus = "running"
	StatusError    ServerStatus = "error"
	StatusStopped  ServerStatus = "stopped"
)

// StatusUpdate is the payload delivered to status sinks on every lifecycle
// transition. Delivery is best-effort; consumers must tolerate duplicates.
type StatusUpdate struct {
	Status  ServerStatus `json:"status"`
	Port    int          `json:"port,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ServerSession is the externally visible state of one lifecycle manager.
type ServerSession struct {
	Status      ServerStatus `json:"status"`
	CurrentPort int          `json:"currentPort,omitempty"`
	Disposed    bool         `json:"disposed"`
}
