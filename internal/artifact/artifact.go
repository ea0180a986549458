package artifact

import "time"

// Status is the lifecycle state of an artifact.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Artifact is a generated, runnable UI module plus its metadata.
// Identity is id@version; id is derived from the cache key, version is
// allocated per id by the store.
type Artifact struct {
	ID             string   `json:"id"`
	Version        int      `json:"version"`
	Code           string   `json:"-"`
	Components     []string `json:"components,omitempty"`
	BaseArtifactID string   `json:"base_artifact_id,omitempty"`
	CacheKey       CacheKey `json:"cache_key"`
	Status         Status   `json:"status"`
	Slug           string   `json:"slug,omitempty"`
	// Dirty marks code that was live-patched by the repair loop without a
	// version bump. The persisted entry keeps the patched code but the
	// version stays what Put allocated.
	Dirty      bool      `json:"dirty,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Ref returns the id@version reference for this artifact.
func (a *Artifact) Ref() string {
	if a == nil {
		return ""
	}
	return Ref(a.ID, a.Version)
}

// ComponentReference points at one named sub-component of an artifact.
// It proxies the referent's code and metadata so a single component can be
// used as a generation source without the full artifact.
type ComponentReference struct {
	ArtifactID    string `json:"artifact_id"`
	ComponentName string `json:"component_name"` // stored PascalCase name

	// Snapshot of the referent at resolve time.
	Code       string   `json:"-"`
	Components []string `json:"components,omitempty"`
}

// ResolvedSource is the single internal shape every revise source collapses
// into at the boundary: an existing artifact, a component reference, a cache
// id string, or raw code text.
type ResolvedSource struct {
	Code            string
	BaseID          string
	FocusComponents []string
}
