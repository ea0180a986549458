// Package traits is the reactive substrate that lets independently generated
// artifacts exchange live state. Each hosted artifact instance owns a small
// observable trait store; explicit bindings carry export values to other
// instances' imports, at most one propagation per change.
package traits

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Reserved trait names of the self-healing error channel present on every
// instance. errorMessage flows instance -> host; retryCount host -> instance.
const (
	TraitErrorMessage = "errorMessage"
	TraitRetryCount   = "retryCount"
)

// Observer is invoked synchronously after a trait value changes. A callback
// runs to completion before the next one starts.
type Observer func(name string, value any)

type observerReg struct {
	id    int
	fn    Observer
	names map[string]bool // nil observes every trait
}

type binding struct {
	from *Instance
	to   *Instance
	name string
}

// Instance is the runtime half of one mounted artifact: its trait values,
// observers, and binding edges. Traits start null at instantiation and die
// with the instance.
type Instance struct {
	ID         string
	ArtifactID string

	mu         sync.Mutex
	values     map[string]any
	observers  []observerReg
	nextObsID  int
	exports    map[string]bool
	imports    map[string]bool
	downstream map[string][]*binding // export name -> fan-out edges
	upstream   map[string]*binding   // import name -> its single source edge
}

func newInstance(artifactID string, exports, imports []string) *Instance {
	inst := &Instance{
		ID:         uuid.NewString(),
		ArtifactID: artifactID,
		values:     map[string]any{},
		exports:    map[string]bool{},
		imports:    map[string]bool{},
		downstream: map[string][]*binding{},
		upstream:   map[string]*binding{},
	}
	for _, name := range exports {
		inst.exports[name] = true
		inst.values[name] = nil
	}
	for _, name := range imports {
		inst.imports[name] = true
		inst.values[name] = nil
	}
	inst.values[TraitErrorMessage] = ""
	inst.values[TraitRetryCount] = 0
	return inst
}

// Get returns the current value of a trait.
func (inst *Instance) Get(name string) any {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.values[name]
}

// Set writes an owned trait and fires local observers synchronously. Imports
// are read-only mirrors; only propagation may write them.
func (inst *Instance) Set(name string, value any) error {
	inst.mu.Lock()
	if inst.imports[name] {
		inst.mu.Unlock()
		return fmt.Errorf("trait %q is an import and read-only on instance %s", name, inst.ID)
	}
	inst.values[name] = value
	obs := inst.observersFor(name)
	inst.mu.Unlock()

	for _, fn := range obs {
		fn(name, value)
	}
	return nil
}

// Observe registers a handler for changes to the named traits, or to every
// trait when names is empty. The returned func removes the handler.
func (inst *Instance) Observe(fn Observer, names ...string) func() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	reg := observerReg{id: inst.nextObsID, fn: fn}
	inst.nextObsID++
	if len(names) > 0 {
		reg.names = map[string]bool{}
		for _, n := range names {
			reg.names[n] = true
		}
	}
	inst.observers = append(inst.observers, reg)
	id := reg.id
	return func() {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		for i, r := range inst.observers {
			if r.id == id {
				inst.observers = append(inst.observers[:i], inst.observers[i+1:]...)
				return
			}
		}
	}
}

// Commit flushes every current export value outward along every registered
// binding. The visited set travels with the whole walk, so a binding cycle
// stops at the first revisit; values already applied stay as written.
func (inst *Instance) Commit() {
	inst.mu.Lock()
	names := make([]string, 0, len(inst.exports))
	for name := range inst.exports {
		names = append(names, name)
	}
	inst.mu.Unlock()

	visited := map[string]bool{inst.ID: true}
	for _, name := range names {
		inst.propagate(name, inst.Get(name), visited)
	}
}

func (inst *Instance) propagate(name string, value any, visited map[string]bool) {
	inst.mu.Lock()
	edges := append([]*binding(nil), inst.downstream[name]...)
	inst.mu.Unlock()

	for _, b := range edges {
		if visited[b.to.ID] {
			log.Printf("trait cycle at %s for %q, stopping propagation", b.to.ID, name)
			continue
		}
		visited[b.to.ID] = true
		b.to.applyImport(name, value)
		// If the target re-exports the same trait, the walk continues
		// through it with the shared visited set.
		b.to.propagate(name, value, visited)
	}
}

// applyImport is the propagation-side write path for import traits.
func (inst *Instance) applyImport(name string, value any) {
	inst.mu.Lock()
	inst.values[name] = value
	obs := inst.observersFor(name)
	inst.mu.Unlock()
	for _, fn := range obs {
		fn(name, value)
	}
}

func (inst *Instance) observersFor(name string) []Observer {
	out := make([]Observer, 0, len(inst.observers))
	for _, r := range inst.observers {
		if r.names == nil || r.names[name] {
			out = append(out, r.fn)
		}
	}
	return out
}

// ExportNames lists declared exports, for prompt assembly and debugging.
func (inst *Instance) ExportNames() []string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make([]string, 0, len(inst.exports))
	for name := range inst.exports {
		out = append(out, name)
	}
	return out
}

func (inst *Instance) String() string {
	return fmt.Sprintf("instance %s (artifact %s)", shortID(inst.ID), inst.ArtifactID)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
