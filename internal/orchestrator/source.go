package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"vibewidget/internal/artifact"
	"vibewidget/internal/store"
)

// Source is the tagged union of things a revision can start from: an
// existing artifact, a single component of one, a cache id string, or raw
// code text. Each collapses into a ResolvedSource exactly once at the
// boundary.
type Source interface {
	resolve(ctx context.Context, st store.Store) (artifact.ResolvedSource, error)
}

// ArtifactSource revises a full existing artifact.
type ArtifactSource struct {
	Artifact *artifact.Artifact
}

func (s ArtifactSource) resolve(context.Context, store.Store) (artifact.ResolvedSource, error) {
	if s.Artifact == nil {
		return artifact.ResolvedSource{}, fmt.Errorf("source artifact is nil")
	}
	return artifact.ResolvedSource{
		Code:   s.Artifact.Code,
		BaseID: s.Artifact.ID,
	}, nil
}

// ComponentSource narrows the revision to one named component; the full
// referent code still travels in the prompt for context.
type ComponentSource struct {
	Ref *artifact.ComponentReference
}

func (s ComponentSource) resolve(context.Context, store.Store) (artifact.ResolvedSource, error) {
	if s.Ref == nil {
		return artifact.ResolvedSource{}, fmt.Errorf("component reference is nil")
	}
	return artifact.ResolvedSource{
		Code:            s.Ref.Code,
		BaseID:          s.Ref.ArtifactID,
		FocusComponents: []string{s.Ref.ComponentName},
	}, nil
}

// IDSource loads the base from the store by "id" or "id@version".
type IDSource struct {
	Ref string
}

func (s IDSource) resolve(ctx context.Context, st store.Store) (artifact.ResolvedSource, error) {
	a, code, err := st.LoadByID(ctx, s.Ref)
	if err != nil {
		return artifact.ResolvedSource{}, err
	}
	return artifact.ResolvedSource{Code: code, BaseID: a.ID}, nil
}

// CodeSource revises raw module text with no lineage.
type CodeSource struct {
	Code string
}

func (s CodeSource) resolve(context.Context, store.Store) (artifact.ResolvedSource, error) {
	if strings.TrimSpace(s.Code) == "" {
		return artifact.ResolvedSource{}, fmt.Errorf("source code is empty")
	}
	return artifact.ResolvedSource{Code: s.Code}, nil
}

// PathSource revises module text loaded from a local path or URL, with no
// lineage.
type PathSource struct {
	Path string
}

func (s PathSource) resolve(ctx context.Context, _ store.Store) (artifact.ResolvedSource, error) {
	code, err := store.LoadExternal(ctx, s.Path)
	if err != nil {
		return artifact.ResolvedSource{}, err
	}
	return artifact.ResolvedSource{Code: code}, nil
}
