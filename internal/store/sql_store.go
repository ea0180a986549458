package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"vibewidget/internal/artifact"
)

// SQLStore persists artifacts in a relational database, one row per
// id@version. Shared by the postgres and sqlite backends; the dialect only
// differs in placeholder style.
type SQLStore struct {
	db         *sql.DB
	positional bool // $1-style placeholders (postgres) vs ?-style (sqlite)

	schemaOnce sync.Once
	schemaErr  error
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS widgets (
    id TEXT NOT NULL,
    version INTEGER NOT NULL,
    code TEXT NOT NULL,
    served_code TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    data_shape TEXT NOT NULL DEFAULT '',
    trait_signature TEXT NOT NULL DEFAULT '',
    theme TEXT NOT NULL DEFAULT '',
    base_artifact_id TEXT NOT NULL DEFAULT '',
    slug TEXT NOT NULL DEFAULT '',
    components TEXT NOT NULL DEFAULT '[]',
    dirty BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    last_used_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
)`

func (s *SQLStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(sqlSchema)
	})
	return s.schemaErr
}

// rebind rewrites ?-placeholders into $N form for postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, key artifact.CacheKey) (*artifact.Artifact, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(); err != nil {
		return nil, false, err
	}
	a, err := s.loadLatest(ctx, key.ID())
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	_, _ = s.db.ExecContext(ctx, s.rebind(`UPDATE widgets SET last_used_at=? WHERE id=? AND version=?`),
		time.Now().UTC(), a.ID, a.Version)
	return a, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key artifact.CacheKey, code, baseArtifactID string) (*artifact.Artifact, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	id := key.ID()
	now := time.Now().UTC()
	components := artifact.ExtractComponents(code)
	compJSON, _ := json.Marshal(components)

	// Version allocation must be atomic per id. The insert recomputes
	// MAX(version)+1 and the primary key rejects a concurrent duplicate,
	// so losers recompute and try again.
	var version int
	for attempt := 0; attempt < 5; attempt++ {
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(version),0)+1 FROM widgets WHERE id=?`), id).Scan(&version)
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO widgets (id, version, code, served_code, description, data_shape, trait_signature, theme,
                     base_artifact_id, slug, components, dirty, created_at, last_used_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)`),
			id, version, code, code, key.Description, key.DataShape, key.TraitSignature, key.Theme,
			baseArtifactID, Slugify(key.Description), string(compJSON), now, now)
		if err == nil {
			return &artifact.Artifact{
				ID:             id,
				Version:        version,
				Code:           code,
				Components:     components,
				BaseArtifactID: baseArtifactID,
				CacheKey:       key,
				Status:         artifact.StatusReady,
				Slug:           Slugify(key.Description),
				CreatedAt:      now,
				LastUsedAt:     now,
			}, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("version allocation for %s did not settle", id)
}

func (s *SQLStore) LoadByID(ctx context.Context, ref string) (*artifact.Artifact, string, error) {
	if s == nil {
		return nil, "", fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(); err != nil {
		return nil, "", err
	}
	id, version, err := artifact.ParseRef(ref)
	if err != nil {
		return nil, "", err
	}
	var a *artifact.Artifact
	if version == 0 {
		a, err = s.loadLatest(ctx, id)
	} else {
		a, err = s.loadVersion(ctx, id, version)
	}
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, "", err
	}
	return a, a.Code, nil
}

func (s *SQLStore) ResolveComponent(ctx context.Context, artifactID, componentName string) (*artifact.ComponentReference, error) {
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

func (s *SQLStore) MarkDirty(ctx context.Context, id string, code string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	compJSON, _ := json.Marshal(artifact.ExtractComponents(code))
	res, err := s.db.ExecContext(ctx, s.rebind(`
UPDATE widgets SET served_code=?, dirty=TRUE, components=?
WHERE id=? AND version=(SELECT MAX(version) FROM widgets w2 WHERE w2.id=?)`),
		code, string(compJSON), id, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLStore) loadLatest(ctx context.Context, id string) (*artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
SELECT id, version, served_code, description, data_shape, trait_signature, theme,
       base_artifact_id, slug, components, dirty, created_at, last_used_at
FROM widgets WHERE id=? ORDER BY version DESC LIMIT 1`), id)
	return scanArtifact(row)
}

func (s *SQLStore) loadVersion(ctx context.Context, id string, version int) (*artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
SELECT id, version, code, description, data_shape, trait_signature, theme,
       base_artifact_id, slug, components, dirty, created_at, last_used_at
FROM widgets WHERE id=? AND version=?`), id, version)
	return scanArtifact(row)
}

func scanArtifact(row *sql.Row) (*artifact.Artifact, error) {
	var (
		a        artifact.Artifact
		compJSON string
	)
	err := row.Scan(&a.ID, &a.Version, &a.Code, &a.CacheKey.Description, &a.CacheKey.DataShape,
		&a.CacheKey.TraitSignature, &a.CacheKey.Theme, &a.BaseArtifactID, &a.Slug,
		&compJSON, &a.Dirty, &a.CreatedAt, &a.LastUsedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(compJSON), &a.Components); err != nil {
		a.Components = nil
	}
	a.Status = artifact.StatusReady
	return &a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
