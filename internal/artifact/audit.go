package artifact

import "time"

// AuditReport is a structured review produced by an external audit
// collaborator. The artifact id/version pair is the join key back into the
// store; everything else is opaque reviewer output.
type AuditReport struct {
	ArtifactID string         `json:"artifact_id" yaml:"artifact_id"`
	Version    int            `json:"version" yaml:"version"`
	Level      string         `json:"level,omitempty" yaml:"level,omitempty"`
	Summary    string         `json:"summary,omitempty" yaml:"summary,omitempty"`
	Findings   []AuditFinding `json:"findings,omitempty" yaml:"findings,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

type AuditFinding struct {
	Severity string `json:"severity" yaml:"severity"`
	Message  string `json:"message" yaml:"message"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
}
