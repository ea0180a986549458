// Package host runs generated artifacts: it mounts them, wires their trait
// bindings, relays the synchronized fields to an attached UI, and drives the
// bounded self-healing repair loop when an instance reports a runtime error.
package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"vibewidget/internal/artifact"
	"vibewidget/internal/orchestrator"
	"vibewidget/internal/traits"
)

// Engine is the orchestrator surface the host needs: in-place repair
// patches and targeted revisions.
type Engine interface {
	RepairCode(ctx context.Context, artifactID, code, errorMessage string, dc artifact.DataContext) (string, error)
	Revise(ctx context.Context, description string, src orchestrator.Source, dc artifact.DataContext, theme string) (*artifact.Artifact, error)
}

// ImportSource names where one import trait is fed from.
type ImportSource struct {
	InstanceID string
}

// Host owns the live instances of one execution environment. Callbacks from
// different instances interleave but each runs to completion.
type Host struct {
	registry *traits.Registry
	engine   Engine

	mu        sync.Mutex
	instances map[string]*Instance
}

func New(registry *traits.Registry, engine Engine) *Host {
	return &Host{
		registry:  registry,
		engine:    engine,
		instances: map[string]*Instance{},
	}
}

// Registry exposes the instance registry for binding lookups.
func (h *Host) Registry() *traits.Registry { return h.registry }

// Mount instantiates an artifact: creates its trait store, binds declared
// imports to their live sources (snapshot now, push later), and arms the
// error channel.
func (h *Host) Mount(a *artifact.Artifact, dc artifact.DataContext, imports map[string]ImportSource) (*Instance, error) {
	if h == nil {
		return nil, fmt.Errorf("host is nil")
	}
	if a == nil {
		return nil, fmt.Errorf("artifact is required")
	}

	ti := h.registry.Instantiate(a.ID, sortedKeys(dc.Exports), sortedKeys(dc.Imports))
	inst := &Instance{
		Artifact:    a,
		Traits:      ti,
		dataContext: dc,
		status:      artifact.StatusReady,
		code:        a.Code,
		lastGood:    a.Code,
	}

	for name, src := range imports {
		source, ok := h.registry.Lookup(src.InstanceID)
		if !ok {
			h.registry.Teardown(ti)
			return nil, fmt.Errorf("import %q: no live instance %s", name, src.InstanceID)
		}
		if err := h.registry.Bind(ti, name, source); err != nil {
			h.registry.Teardown(ti)
			return nil, err
		}
	}

	inst.unobserve = ti.Observe(func(_ string, value any) {
		msg, _ := value.(string)
		h.onError(inst, msg)
	}, traits.TraitErrorMessage)

	h.mu.Lock()
	h.instances[ti.ID] = inst
	h.mu.Unlock()

	inst.appendLog("mounted artifact %s v%d", a.ID, a.Version)
	return inst, nil
}

// Unmount tears the instance down; its traits and bindings die with it.
func (h *Host) Unmount(inst *Instance) {
	if h == nil || inst == nil {
		return
	}
	if inst.unobserve != nil {
		inst.unobserve()
	}
	h.registry.Teardown(inst.Traits)
	h.mu.Lock()
	delete(h.instances, inst.Traits.ID)
	h.mu.Unlock()
}

// Lookup finds a mounted instance by its runtime id.
func (h *Host) Lookup(instanceID string) (*Instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[instanceID]
	return inst, ok
}

// ReportError is the entry point for the execution environment: a non-empty
// message on the error channel triggers the repair loop.
func (h *Host) ReportError(inst *Instance, message, stackTrace string) {
	if h == nil || inst == nil {
		return
	}
	if strings.TrimSpace(stackTrace) != "" {
		message = message + "\n" + stackTrace
	}
	// Setting the trait is the sole trigger; the observer does the work.
	_ = inst.Traits.Set(traits.TraitErrorMessage, message)
}

// ReportRecovered clears the error channel after a successful re-execution
// so a stale message cannot re-trigger repair on the next render.
func (h *Host) ReportRecovered(inst *Instance) {
	if h == nil || inst == nil {
		return
	}
	inst.mu.Lock()
	inst.lastGood = inst.code
	inst.lastError = ""
	inst.mu.Unlock()
	inst.setStatus(artifact.StatusReady)
	_ = inst.Traits.Set(traits.TraitErrorMessage, "")
}

// Edit runs a UI-driven targeted revision and mounts nothing: the caller
// decides whether to swap the returned artifact in.
func (h *Host) Edit(ctx context.Context, inst *Instance, req EditRequest) (*artifact.Artifact, error) {
	if h == nil || inst == nil {
		return nil, fmt.Errorf("host or instance is nil")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("edit prompt is required")
	}
	if el := strings.TrimSpace(req.TargetElement); el != "" {
		prompt = fmt.Sprintf("%s (focus on the %s element)", prompt, el)
	}
	return h.engine.Revise(ctx, prompt, orchestrator.ArtifactSource{Artifact: inst.Artifact}, inst.dataContext, inst.Artifact.CacheKey.Theme)
}

// onError drives one round of the repair loop. While the patch round-trip
// is pending the instance shows generating; the artifact underneath stays
// mounted so success removes the overlay without a remount. At the budget
// the failure becomes terminal: raw error, heuristic hint, last-good code
// still mounted.
func (h *Host) onError(inst *Instance, message string) {
	if message == "" {
		return
	}

	inst.mu.Lock()
	inst.lastError = message
	count := inst.retryCount
	inst.mu.Unlock()

	if count >= orchestrator.RepairBudget {
		h.fail(inst, message, count)
		return
	}

	inst.mu.Lock()
	inst.retryCount++
	count = inst.retryCount
	code := inst.code
	dc := inst.dataContext
	inst.mu.Unlock()

	_ = inst.Traits.Set(traits.TraitRetryCount, count)
	inst.setStatus(artifact.StatusGenerating)
	inst.appendLog("error detected (attempt %d): %s", count, firstLine(message))
	inst.appendLog("attempting automatic fix...")

	fixed, err := h.engine.RepairCode(context.Background(), inst.Artifact.ID, code, message, dc)
	if err != nil {
		log.Printf("repair attempt %d for %s failed: %v", count, inst.Artifact.ID, err)
		inst.appendLog("fix attempt failed: %v", err)
		if errors.Is(err, orchestrator.ErrGenerationUnavailable) {
			h.fail(inst, message, count)
			return
		}
		// The attempt is spent and the mounted code is still broken, so
		// the same diagnostic goes around again until the budget runs out.
		h.onError(inst, message)
		return
	}

	inst.appendLog("code patched, re-executing")
	inst.mu.Lock()
	inst.lastError = ""
	inst.mu.Unlock()
	inst.setCode(fixed)
	inst.setStatus(artifact.StatusReady)
	_ = inst.Traits.Set(traits.TraitErrorMessage, "")
}

// fail makes the instance terminal: raw error stays visible, the heuristic
// hint is attached, and the last good code goes back on screen.
func (h *Host) fail(inst *Instance, message string, attempts int) {
	inst.mu.Lock()
	inst.hint = orchestrator.Hint(message)
	inst.code = inst.lastGood
	inst.mu.Unlock()
	inst.setStatus(artifact.StatusError)
	inst.appendLog("giving up after %d repair attempts: %s", attempts, firstLine(message))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
