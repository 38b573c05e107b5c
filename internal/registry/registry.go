// Package registry implements the tool registry and execution gate:
// declarative tool definitions, mode-filtered projection to the model,
// argument coercion, path sandboxing, the ticket gate, and shell
// confirmation.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marvin-core/marvin/pkg/models"
)

// Category classifies a tool for mode gating.
type Category string

const (
	CategoryAlways   Category = "always"
	CategoryCoding   Category = "coding"
	CategoryReadonly Category = "readonly"
)

// Handler executes a validated tool call and returns its text result.
// Expected failures come back as a string beginning "Error:", not as a
// Go error. A returned Go error represents an unexpected handler bug and
// is still converted to an "Error:" string by Execute, never allowed to
// crash the loop.
type Handler func(ctx context.Context, tc *ToolContext, args map[string]any) (string, error)

// ToolDef is a declarative tool definition.
type ToolDef struct {
	Name        string
	Description string
	// Schema is a JSON Schema object describing the expected arguments.
	Schema   map[string]any
	Handler  Handler
	Category Category

	// RequiresConfirmation marks tools (shell) that must call
	// ToolContext.ConfirmCommand before running in interactive mode.
	RequiresConfirmation bool

	// Writes marks tools that change files or repository state. The
	// ticket gate does not read it: it keys on the WriteTools name set
	// (create_file, append_file, apply_patch, run_command, git_commit,
	// git_checkout).
	Writes bool
}

// ToolContext is passed to every handler.
type ToolContext struct {
	WorkingDir     string
	CodingMode     bool
	Mode           models.Mode
	NonInteractive bool
	ProfileDir     string
	Profile        any // *profile.Profile; any to avoid an import cycle
	ConfirmCommand func(command string) bool

	// ParentTicketID, when non-empty, activates the ticket gate for write
	// tools.
	ParentTicketID string
}

// Registry holds the population of tool definitions.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDef
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*ToolDef)}
}

// Register adds a tool. Names are unique; re-registering one is an error.
func (r *Registry) Register(def *ToolDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns every registered tool name, sorted, for the unknown-tool
// error message.
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

// All returns every registered tool definition.
func (r *Registry) All() []*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*ToolDef, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ForNames projects the registry down to an explicit include set.
func (r *Registry) ForNames(names []string) []*ToolDef {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []*ToolDef
	for _, def := range r.All() {
		if wanted[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

// ExcludeNames projects the registry excluding an explicit set.
func (r *Registry) ExcludeNames(names []string) []*ToolDef {
	excluded := make(map[string]bool, len(names))
	for _, n := range names {
		excluded[n] = true
	}
	var out []*ToolDef
	for _, def := range r.All() {
		if !excluded[def.Name] {
			out = append(out, def)
		}
	}
	return out
}
