package portscan

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// DefaultProbeTimeout bounds a single bind attempt.
const DefaultProbeTimeout = 400 * time.Millisecond

// Outcome classifies the result of one probe.
type Outcome int

const (
	// OutcomeAvailable means the port could be bound and was released.
	OutcomeAvailable Outcome = iota
	// OutcomeUnavailable means the bind failed.
	OutcomeUnavailable
	// OutcomeTimedOut means no verdict arrived within the probe timeout.
	OutcomeTimedOut
)

// Result is the explicit outcome of one probe.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Available reports whether the probe found the port bindable. Timeouts and
// unclassified errors count as unavailable (fail-closed).
func (r Result) Available() bool {
	return r.Outcome == OutcomeAvailable
}

// Prober performs one availability check for a single candidate port.
type Prober interface {
	Probe(ctx context.Context, port int) Result
}

// TCPProbe checks availability by binding a loopback listener on the port
// and releasing it immediately. The pattern is inherently racy: a port
// reported available may be taken before the real listen. Callers own that
// race, not the probe.
type TCPProbe struct {
	// Host restricts the bind. Defaults to loopback.
	Host string
	// Timeout bounds the bind attempt when the context carries no deadline.
	Timeout time.Duration
}

// NewTCPProbe returns a loopback probe with the given timeout.
func NewTCPProbe(timeout time.Duration) *TCPProbe {
	return &TCPProbe{Host: "127.0.0.1", Timeout: timeout}
}

// Probe attempts to bind port and reports the classified outcome.
func (p *TCPProbe) Probe(ctx context.Context, port int) Result {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err == nil {
		ln.Close()
		return Result{Outcome: OutcomeAvailable}
	}

	return classifyBindError(ctx, err)
}

// classifyBindError maps a bind error to a probe outcome. Everything the
// probe cannot name maps to unavailable.
func classifyBindError(ctx context.Context, err error) Result {
	switch {
	case ctx.Err() != nil:
		return Result{Outcome: OutcomeTimedOut, Reason: "probe timed out"}
	case errors.Is(err, syscall.EADDRINUSE):
		return Result{Outcome: OutcomeUnavailable, Reason: "address in use"}
	case errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return Result{Outcome: OutcomeUnavailable, Reason: "permission denied"}
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return Result{Outcome: OutcomeUnavailable, Reason: "address not available"}
	default:
		return Result{Outcome: OutcomeUnavailable, Reason: err.Error()}
	}
}
