package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"vibewidget/internal/artifact"
)

const (
	widgetExt        = ".js"
	codeCacheEntries = 128
)

type indexEntry struct {
	ID             string            `json:"id"`
	Slug           string            `json:"slug"`
	CacheKey       artifact.CacheKey `json:"cache_key"`
	Components     []string          `json:"components,omitempty"`
	BaseArtifactID string            `json:"base_artifact_id,omitempty"`
	Version        int               `json:"version"`
	Dirty          bool              `json:"dirty,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastUsedAt     time.Time         `json:"last_used_at"`
}

type indexFile struct {
	SchemaVersion int                    `json:"schema_version"`
	Widgets       map[string]*indexEntry `json:"widgets"`
}

// DiskStore keeps artifact code under widgets/ with a JSON index under
// index/. The latest code of an id lives at widgets/<id>.js; every version
// is additionally retained at widgets/<id>.v<N>.js so external edits and
// re-derived keys append instead of overwrite.
type DiskStore struct {
	mu sync.Mutex

	root       string
	widgetsDir string
	indexPath  string

	entries map[string]*indexEntry

	codeCache *lru.Cache[string, string]

	// Mirror, when set, receives a copy of every version's code (S3 in
	// production). Mirror failures are logged and never fail a Put.
	Mirror CodeSink
}

// CodeSink receives immutable per-version code blobs.
type CodeSink interface {
	PutCode(ctx context.Context, ref string, code string) error
}

func NewDiskStore(root string) (*DiskStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	s := &DiskStore{
		root:       root,
		widgetsDir: filepath.Join(root, "widgets"),
		indexPath:  filepath.Join(root, "index", "widgets.json"),
		entries:    map[string]*indexEntry{},
	}
	cache, err := lru.New[string, string](codeCacheEntries)
	if err != nil {
		return nil, err
	}
	s.codeCache = cache
	if err := os.MkdirAll(s.widgetsDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0o755); err != nil {
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) Get(_ context.Context, key artifact.CacheKey) (*artifact.Artifact, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("store is nil")
	}
	id := key.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	code, err := s.readCodeLocked(ent.ID, 0)
	if err != nil {
		if os.IsNotExist(err) {
			// Index entry without a code file is treated as a miss so the
			// next Put repairs it with a fresh version.
			return nil, false, nil
		}
		return nil, false, err
	}
	ent.LastUsedAt = time.Now().UTC()
	if err := s.persistIndexLocked(); err != nil {
		return nil, false, err
	}
	return entryToArtifact(ent, code), true, nil
}

func (s *DiskStore) Put(ctx context.Context, key artifact.CacheKey, code, baseArtifactID string) (*artifact.Artifact, error) {
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

	ent, ok := s.entries[id]
	if !ok {
		ent = &indexEntry{
			ID:        id,
			Slug:      Slugify(key.Description),
			CacheKey:  key,
			CreatedAt: now,
		}
		s.entries[id] = ent
	}
	ent.Version++
	ent.Components = artifact.ExtractComponents(code)
	ent.BaseArtifactID = baseArtifactID
	ent.Dirty = false
	ent.LastUsedAt = now

	if err := s.writeCodeLocked(id, ent.Version, code); err != nil {
		return nil, err
	}
	if err := s.persistIndexLocked(); err != nil {
		return nil, err
	}
	// The version is already durable locally; a lagging mirror is not a
	// reason to fail the write.
	if s.Mirror != nil {
		if err := s.Mirror.PutCode(ctx, artifact.Ref(id, ent.Version), code); err != nil {
			log.Printf("mirror write for %s failed: %v", artifact.Ref(id, ent.Version), err)
		}
	}
	return entryToArtifact(ent, code), nil
}

func (s *DiskStore) LoadByID(_ context.Context, ref string) (*artifact.Artifact, string, error) {
	if s == nil {
		return nil, "", fmt.Errorf("store is nil")
	}
	id, version, err := artifact.ParseRef(ref)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if version > ent.Version {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, artifact.Ref(id, version))
	}
	code, err := s.readCodeLocked(id, version)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, "", err
	}
	a := entryToArtifact(ent, code)
	if version != 0 {
		a.Version = version
	}
	return a, code, nil
}

func (s *DiskStore) ResolveComponent(ctx context.Context, artifactID, componentName string) (*artifact.ComponentReference, error) {
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

// MarkDirty replaces the served code in place after a repair patch. The
// version is untouched: transient fixups are not first-class lineage.
func (s *DiskStore) MarkDirty(_ context.Context, id string, code string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	latest := filepath.Join(s.widgetsDir, id+widgetExt)
	if err := os.WriteFile(latest, []byte(code), 0o644); err != nil {
		return err
	}
	s.codeCache.Remove(artifact.Ref(id, 0))
	ent.Dirty = true
	ent.Components = artifact.ExtractComponents(code)
	return s.persistIndexLocked()
}

// LoadTheme reads a resolved theme description from themes/<name>.json and
// returns it as opaque text.
func (s *DiskStore) LoadTheme(name string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	raw, err := os.ReadFile(filepath.Join(s.root, "themes", name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: theme %q", ErrSourceUnavailable, name)
		}
		return "", err
	}
	return string(raw), nil
}

func (s *DiskStore) readCodeLocked(id string, version int) (string, error) {
	ref := artifact.Ref(id, version)
	if code, ok := s.codeCache.Get(ref); ok {
		return code, nil
	}
	path := filepath.Join(s.widgetsDir, id+widgetExt)
	if version != 0 {
		path = filepath.Join(s.widgetsDir, fmt.Sprintf("%s.v%d%s", id, version, widgetExt))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s.codeCache.Add(ref, string(raw))
	return string(raw), nil
}

func (s *DiskStore) writeCodeLocked(id string, version int, code string) error {
	versioned := filepath.Join(s.widgetsDir, fmt.Sprintf("%s.v%d%s", id, version, widgetExt))
	if err := os.WriteFile(versioned, []byte(code), 0o644); err != nil {
		return err
	}
	latest := filepath.Join(s.widgetsDir, id+widgetExt)
	if err := os.WriteFile(latest, []byte(code), 0o644); err != nil {
		return err
	}
	s.codeCache.Add(artifact.Ref(id, version), code)
	s.codeCache.Add(artifact.Ref(id, 0), code)
	return nil
}

func (s *DiskStore) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var idx indexFile
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("corrupt widget index: %w", err)
	}
	if idx.Widgets == nil {
		idx.Widgets = map[string]*indexEntry{}
	}
	s.entries = idx.Widgets
	return nil
}

func (s *DiskStore) persistIndexLocked() error {
	raw, err := json.MarshalIndent(indexFile{SchemaVersion: 1, Widgets: s.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath)
}

func entryToArtifact(ent *indexEntry, code string) *artifact.Artifact {
	return &artifact.Artifact{
		ID:             ent.ID,
		Version:        ent.Version,
		Code:           code,
		Components:     append([]string(nil), ent.Components...),
		BaseArtifactID: ent.BaseArtifactID,
		CacheKey:       ent.CacheKey,
		Status:         artifact.StatusReady,
		Slug:           ent.Slug,
		Dirty:          ent.Dirty,
		CreatedAt:      ent.CreatedAt,
		LastUsedAt:     ent.LastUsedAt,
	}
}
