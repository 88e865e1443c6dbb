// Package tool holds the registry of pass-through editor tools exposed over
// the JSON-RPC surface. Tools are stateless request/response glue around the
// host filesystem and repository; they carry no lifecycle of their own.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bridgeport-dev/bridgeport/internal/logging"
)

var (
	// ErrUnknownTool is returned when no tool matches the requested name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolDisabled is returned when configuration disables a tool.
	ErrToolDisabled = errors.New("tool disabled")
)

// Tool is one editor operation callable by name.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry manages tool registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	disabled map[string]bool
	workDir  string
}

// NewRegistry creates an empty registry rooted at workDir.
func NewRegistry(workDir string) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		disabled: make(map[string]bool),
		workDir:  workDir,
	}
}

// DefaultRegistry returns a registry with all built-in tools. enabled maps
// tool names to an explicit on/off; absent names default to on.
func DefaultRegistry(workDir string, enabled map[string]bool) *Registry {
	r := NewRegistry(workDir)
	r.Register(&fileReadTool{workDir: workDir})
	r.Register(&fileWriteTool{workDir: workDir})
	r.Register(&fileStatTool{workDir: workDir})
	r.Register(&fileGlobTool{workDir: workDir})
	r.Register(&gitStatusTool{workDir: workDir})
	r.Register(&gitLogTool{workDir: workDir})

	for name, on := range enabled {
		if !on {
			r.Disable(name)
		}
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Debug().Str("tool", t.Name()).Msg("registering tool")
	r.tools[t.Name()] = t
}

// Disable marks a tool unavailable without unregistering it.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = true
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute looks up and runs a tool by name.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	disabled := r.disabled[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if disabled {
		return nil, fmt.Errorf("%w: %s", ErrToolDisabled, name)
	}
	return t.Execute(ctx, args)
}
