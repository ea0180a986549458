package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"vibewidget/internal/artifact"
)

// ListAudits reads every audit report under audits/ that joins on the given
// artifact id. Reports are produced by an external reviewer in either JSON
// or YAML; unreadable files are skipped rather than failing the listing.
func (s *DiskStore) ListAudits(artifactID string) ([]artifact.AuditReport, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	artifactID = strings.TrimSpace(artifactID)
	if artifactID == "" {
		return nil, fmt.Errorf("artifact id is required")
	}
	dir := filepath.Join(s.root, "audits")
	names, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []artifact.AuditReport
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		raw, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			continue
		}
		var report artifact.AuditReport
		switch ext {
		case ".json":
			if err := json.Unmarshal(raw, &report); err != nil {
				continue
			}
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(raw, &report); err != nil {
				continue
			}
		default:
			continue
		}
		if report.ArtifactID != artifactID {
			continue
		}
		out = append(out, report)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
