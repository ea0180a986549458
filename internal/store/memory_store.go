package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vibewidget/internal/artifact"
)

type memoryEntry struct {
	entry    indexEntry
	versions map[int]string // version -> code as written by Put
	latest   string         // served code; diverges from versions after MarkDirty
}

// MemoryStore is the in-process backend used by tests and ephemeral hosts.
// Semantics match DiskStore, including per-id atomic version allocation.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*memoryEntry{}}
}

func (s *MemoryStore) Get(_ context.Context, key artifact.CacheKey) (*artifact.Artifact, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.byID[key.ID()]
	if !ok {
		return nil, false, nil
	}
	ent.entry.LastUsedAt = time.Now().UTC()
	return entryToArtifact(&ent.entry, ent.latest), true, nil
}

func (s *MemoryStore) Put(_ context.Context, key artifact.CacheKey, code, baseArtifactID string) (*artifact.Artifact, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}
	id := key.ID()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.byID[id]
	if !ok {
		ent = &memoryEntry{
			entry: indexEntry{
				ID:        id,
				Slug:      Slugify(key.Description),
				CacheKey:  key,
				CreatedAt: now,
			},
			versions: map[int]string{},
		}
		s.byID[id] = ent
	}
	ent.entry.Version++
	ent.entry.Components = artifact.ExtractComponents(code)
	ent.entry.BaseArtifactID = baseArtifactID
	ent.entry.Dirty = false
	ent.entry.LastUsedAt = now
	ent.versions[ent.entry.Version] = code
	ent.latest = code

	return entryToArtifact(&ent.entry, code), nil
}

func (s *MemoryStore) LoadByID(_ context.Context, ref string) (*artifact.Artifact, string, error) {
	if s == nil {
		return nil, "", fmt.Errorf("store is nil")
	}
	id, version, err := artifact.ParseRef(ref)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.byID[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	code := ent.latest
	if version != 0 {
		code, ok = ent.versions[version]
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
	}
	a := entryToArtifact(&ent.entry, code)
	if version != 0 {
		a.Version = version
	}
	return a, code, nil
}

func (s *MemoryStore) ResolveComponent(ctx context.Context, artifactID, componentName string) (*artifact.ComponentReference, error) {
	a, _, err := s.LoadByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	ref, err := resolveComponent(a, componentName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q in artifact %s", ErrUnknownComponent, componentName, artifactID)
	}
	return ref, nil
}

func (s *MemoryStore) MarkDirty(_ context.Context, id string, code string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ent.latest = code
	ent.entry.Dirty = true
	ent.entry.Components = artifact.ExtractComponents(code)
	return nil
}
