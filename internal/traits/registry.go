package traits

import (
	"fmt"
	"sync"
)

// Registry tracks live artifact instances so bindings can look up a source
// by instance id. It is an explicit object passed to whoever needs it, not
// process-wide state, so independent hosts can coexist in one process.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Instance
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Instance{}}
}

// Instantiate creates a new instance with the declared trait surface, all
// traits null, and registers it.
func (r *Registry) Instantiate(artifactID string, exports, imports []string) *Instance {
	inst := newInstance(artifactID, exports, imports)
	r.mu.Lock()
	r.byID[inst.ID] = inst
	r.mu.Unlock()
	return inst
}

func (r *Registry) Lookup(instanceID string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byID[instanceID]
	return inst, ok
}

// Bind wires source's export into target's import of the same name: one
// eager read seeds the import with the current value, then the live edge
// carries all subsequent commits. An import accepts exactly one upstream.
func (r *Registry) Bind(target *Instance, name string, source *Instance) error {
	if target == nil || source == nil {
		return fmt.Errorf("bind requires both instances")
	}
	if target == source {
		return fmt.Errorf("cannot bind %q to itself", name)
	}

	target.mu.Lock()
	if !target.imports[name] {
		target.mu.Unlock()
		return fmt.Errorf("trait %q is not a declared import on instance %s", name, target.ID)
	}
	if target.upstream[name] != nil {
		target.mu.Unlock()
		return fmt.Errorf("import %q on instance %s is already bound", name, target.ID)
	}
	target.mu.Unlock()

	source.mu.Lock()
	if !source.exports[name] {
		source.mu.Unlock()
		return fmt.Errorf("trait %q is not a declared export on instance %s", name, source.ID)
	}
	snapshot := source.values[name]
	b := &binding{from: source, to: target, name: name}
	source.downstream[name] = append(source.downstream[name], b)
	source.mu.Unlock()

	target.mu.Lock()
	target.upstream[name] = b
	target.mu.Unlock()

	// Snapshot seed; later values arrive by push on commit.
	target.applyImport(name, snapshot)
	return nil
}

// Teardown removes the instance and detaches every edge touching it.
func (r *Registry) Teardown(inst *Instance) {
	if inst == nil {
		return
	}
	r.mu.Lock()
	delete(r.byID, inst.ID)
	r.mu.Unlock()

	inst.mu.Lock()
	upstreams := make([]*binding, 0, len(inst.upstream))
	for _, b := range inst.upstream {
		upstreams = append(upstreams, b)
	}
	downstreams := make([]*binding, 0)
	for _, edges := range inst.downstream {
		downstreams = append(downstreams, edges...)
	}
	inst.upstream = map[string]*binding{}
	inst.downstream = map[string][]*binding{}
	inst.mu.Unlock()

	for _, b := range upstreams {
		b.from.mu.Lock()
		b.from.downstream[b.name] = removeBinding(b.from.downstream[b.name], b)
		b.from.mu.Unlock()
	}
	for _, b := range downstreams {
		b.to.mu.Lock()
		if b.to.upstream[b.name] == b {
			delete(b.to.upstream, b.name)
		}
		b.to.mu.Unlock()
	}
}

// Size reports how many instances are live, for host diagnostics.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func removeBinding(edges []*binding, b *binding) []*binding {
	for i, e := range edges {
		if e == b {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}
