package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vibewidget/internal/artifact"
)

func TestDiskStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := NewDiskStore(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := testKey("line chart of y over x")
	a, err := s.Put(ctx, key, storedModule, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, key, storedModule+"\n// v2", ""); err != nil {
		t.Fatalf("put v2: %v", err)
	}

	reopened, err := NewDiskStore(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := reopened.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if got.ID != a.ID || got.Version != 2 {
		t.Fatalf("reloaded %s@%d, want %s@2", got.ID, got.Version, a.ID)
	}
	if len(got.Components) == 0 {
		t.Fatalf("components not persisted")
	}

	_, code, err := reopened.LoadByID(ctx, artifact.Ref(a.ID, 1))
	if err != nil {
		t.Fatalf("load v1 after reopen: %v", err)
	}
	if code != storedModule {
		t.Fatalf("v1 code changed across reopen")
	}
}

func TestDiskStoreVersionedFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewDiskStore(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := testKey("line chart of y over x")
	a, err := s.Put(ctx, key, "export default 1;", "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	for _, name := range []string{a.ID + ".js", a.ID + ".v1.js"} {
		if _, err := os.Stat(filepath.Join(root, "widgets", name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "index", "widgets.json")); err != nil {
		t.Fatalf("missing index: %v", err)
	}
}

func TestDiskStoreMarkDirtyKeepsVersionFile(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := testKey("line chart of y over x")
	a, err := s.Put(ctx, key, "export default 1;", "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.MarkDirty(ctx, a.ID, "export default 99;"); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}

	latest, code, err := s.LoadByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if code != "export default 99;" || latest.Version != 1 || !latest.Dirty {
		t.Fatalf("after patch: v%d dirty=%v code=%q", latest.Version, latest.Dirty, code)
	}
	_, code, err = s.LoadByID(ctx, artifact.Ref(a.ID, 1))
	if err != nil {
		t.Fatalf("load v1: %v", err)
	}
	if code != "export default 1;" {
		t.Fatalf("versioned file rewritten by patch: %q", code)
	}
}

type recordingSink struct {
	refs []string
}

func (r *recordingSink) PutCode(_ context.Context, ref, code string) error {
	r.refs = append(r.refs, ref)
	return nil
}

func TestDiskStoreMirrorsEveryVersion(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sink := &recordingSink{}
	s.Mirror = sink

	key := testKey("line chart of y over x")
	if _, err := s.Put(ctx, key, "export default 1;", ""); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if _, err := s.Put(ctx, key, "export default 2;", ""); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	if len(sink.refs) != 2 || sink.refs[0] != artifact.Ref(key.ID(), 1) || sink.refs[1] != artifact.Ref(key.ID(), 2) {
		t.Fatalf("mirrored refs = %v", sink.refs)
	}
}

type failingSink struct{}

func (failingSink) PutCode(_ context.Context, _, _ string) error {
	return errors.New("bucket unreachable")
}

func TestDiskStoreFailedMirrorDoesNotFailPut(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Mirror = failingSink{}

	key := testKey("line chart of y over x")
	a, err := s.Put(ctx, key, storedModule, "")
	if err != nil {
		t.Fatalf("put with broken mirror: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}
	if _, code, err := s.LoadByID(ctx, a.Ref()); err != nil || code != storedModule {
		t.Fatalf("local copy missing after mirror failure: %v", err)
	}
}

func TestDiskStoreLoadTheme(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "themes"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := `{"palette":"dark"}`
	if err := os.WriteFile(filepath.Join(root, "themes", "dark.json"), []byte(want), 0o644); err != nil {
		t.Fatalf("write theme: %v", err)
	}

	got, err := s.LoadTheme("dark")
	if err != nil {
		t.Fatalf("load theme: %v", err)
	}
	if got != want {
		t.Fatalf("theme = %q", got)
	}
	if _, err := s.LoadTheme("missing"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("missing theme: %v", err)
	}
	if got, err := s.LoadTheme(""); err != nil || got != "" {
		t.Fatalf("empty theme name: %q %v", got, err)
	}
}

func TestDiskStoreListAudits(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	dir := filepath.Join(root, "audits")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("r2.json", `{"artifact_id":"abc","version":2,"summary":"second"}`)
	write("r1.yaml", "artifact_id: abc\nversion: 1\nsummary: first\nfindings:\n  - severity: warn\n    message: unbounded loop\n")
	write("other.json", `{"artifact_id":"zzz","version":1}`)
	write("broken.yaml", "::: not yaml")
	write("notes.txt", "ignored")

	reports, err := s.ListAudits("abc")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	if reports[0].Version != 1 || reports[0].Summary != "first" {
		t.Fatalf("first report = %+v", reports[0])
	}
	if len(reports[0].Findings) != 1 || reports[0].Findings[0].Severity != "warn" {
		t.Fatalf("yaml findings = %+v", reports[0].Findings)
	}
	if reports[1].Version != 2 {
		t.Fatalf("second report = %+v", reports[1])
	}

	none, err := s.ListAudits("feedfacecafe")
	if err != nil || none != nil {
		t.Fatalf("no-match listing: %v %v", none, err)
	}
}

func TestEntryTimestamps(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := testKey("line chart of y over x")
	a, err := s.Put(ctx, key, "export default 1;", "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if a.CreatedAt.IsZero() || a.LastUsedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", a)
	}
	if time.Since(a.CreatedAt) > time.Minute {
		t.Fatalf("created_at implausible: %v", a.CreatedAt)
	}
}
