package host

import (
	"fmt"
	"sync"

	"vibewidget/internal/artifact"
	"vibewidget/internal/traits"
)

// State is the host->UI snapshot of one mounted instance's synchronized
// fields.
type State struct {
	InstanceID   string          `json:"instanceId"`
	ArtifactID   string          `json:"artifactId"`
	Status       artifact.Status `json:"status"`
	Logs         []string        `json:"logs"`
	Code         string          `json:"code"`
	RetryCount   int             `json:"retryCount"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Hint         string          `json:"hint,omitempty"`
}

// EditRequest is the ad hoc UI payload for a targeted revision of one part
// of a mounted artifact.
type EditRequest struct {
	TargetElement string `json:"targetElement"`
	Prompt        string `json:"prompt"`
}

// Instance is one mounted artifact: the served code, its trait store, and
// the repair bookkeeping. The artifact metadata itself is never mutated
// here; only trait values and the served code change at runtime.
type Instance struct {
	mu sync.Mutex

	Artifact *artifact.Artifact
	Traits   *traits.Instance

	dataContext artifact.DataContext

	status     artifact.Status
	logs       []string
	code       string
	lastGood   string
	retryCount int
	hint       string
	lastError  string

	// onCode signals the embedding environment to re-execute; onState
	// pushes a fresh snapshot to whatever UI is attached.
	onCode    func(code string)
	onState   func(State)
	unobserve func()
}

// ID returns the runtime instance id (distinct from the artifact id: many
// instances of one artifact can coexist).
func (in *Instance) ID() string {
	return in.Traits.ID
}

// State snapshots the synchronized fields.
func (in *Instance) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return State{
		InstanceID:   in.Traits.ID,
		ArtifactID:   in.Artifact.ID,
		Status:       in.status,
		Logs:         append([]string(nil), in.logs...),
		Code:         in.code,
		RetryCount:   in.retryCount,
		ErrorMessage: in.lastError,
		Hint:         in.hint,
	}
}

// Code returns the currently served module text.
func (in *Instance) Code() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.code
}

// OnCode registers the re-execution signal; fired whenever the served code
// changes.
func (in *Instance) OnCode(fn func(code string)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onCode = fn
}

// OnState registers the UI push callback.
func (in *Instance) OnState(fn func(State)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onState = fn
}

func (in *Instance) appendLog(format string, args ...any) {
	in.mu.Lock()
	in.logs = append(in.logs, fmt.Sprintf(format, args...))
	in.mu.Unlock()
	in.pushState()
}

func (in *Instance) setStatus(s artifact.Status) {
	in.mu.Lock()
	in.status = s
	in.mu.Unlock()
	in.pushState()
}

func (in *Instance) pushState() {
	in.mu.Lock()
	fn := in.onState
	in.mu.Unlock()
	if fn != nil {
		fn(in.State())
	}
}

// setCode installs new served code and fires the re-execution signal.
func (in *Instance) setCode(code string) {
	in.mu.Lock()
	in.code = code
	fn := in.onCode
	in.mu.Unlock()
	if fn != nil {
		fn(code)
	}
	in.pushState()
}
