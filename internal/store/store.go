package store

import (
	"context"
	"errors"

	"vibewidget/internal/artifact"
)

var (
	// ErrNotFound means an id or id@version that should exist does not.
	// This is distinct from a cache miss, which Get reports without error.
	ErrNotFound = errors.New("artifact not found")
	// ErrUnknownComponent means the component name is not in the artifact's
	// exported component set.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrSourceUnavailable means an external path or URL could not be read.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Store persists generated artifacts and their lineage.
//
// Get is a cache lookup: a miss is ordinary control flow, not an error.
// Put allocates the id deterministically from the cache key and the next
// version for that id, extracts the component set from the code, and
// performs a durable write. MarkDirty records a live repair patch against
// the current version without allocating a new one.
type Store interface {
	Get(ctx context.Context, key artifact.CacheKey) (*artifact.Artifact, bool, error)
	Put(ctx context.Context, key artifact.CacheKey, code, baseArtifactID string) (*artifact.Artifact, error)
	LoadByID(ctx context.Context, ref string) (*artifact.Artifact, string, error)
	ResolveComponent(ctx context.Context, artifactID, componentName string) (*artifact.ComponentReference, error)
	MarkDirty(ctx context.Context, id string, code string) error
}

// resolveComponent is the backend-independent part of ResolveComponent:
// translate the caller-facing alias, match against the extracted set, and
// build the read-only reference.
func resolveComponent(a *artifact.Artifact, componentName string) (*artifact.ComponentReference, error) {
	want := componentName
	if translated := artifact.ParseComponentAlias(componentName); translated != "" {
		want = translated
	}
	for _, name := range a.Components {
		if name == want || name == componentName {
			return &artifact.ComponentReference{
				ArtifactID:    a.ID,
				ComponentName: name,
				Code:          a.Code,
				Components:    append([]string(nil), a.Components...),
			}, nil
		}
	}
	return nil, ErrUnknownComponent
}
