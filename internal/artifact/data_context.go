package artifact

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// sampleRows is how many records of the input data travel with the prompt.
const sampleRows = 3

// DataContext describes the input data handed to the generation collaborator:
// schema, a small sample, and the declared trait surface. Content beyond the
// sample never leaves the host.
type DataContext struct {
	Columns []string          `json:"columns"`
	Types   map[string]string `json:"types,omitempty"`
	Rows    int               `json:"rows"`
	Sample  []map[string]any  `json:"sample,omitempty"`

	// Exports maps trait name -> description of state this artifact exposes.
	// Imports maps trait name -> description of the upstream source.
	Exports map[string]string `json:"exports,omitempty"`
	Imports map[string]string `json:"imports,omitempty"`
}

// SampleRecords returns at most sampleRows records for prompt embedding.
func (d DataContext) SampleRecords() []map[string]any {
	if len(d.Sample) <= sampleRows {
		return d.Sample
	}
	return d.Sample[:sampleRows]
}

// ShapeFingerprint hashes column names and types only. Two datasets with the
// same shape share a fingerprint regardless of content or row count.
func (d DataContext) ShapeFingerprint() string {
	if len(d.Columns) == 0 {
		return ""
	}
	cols := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		cols = append(cols, fmt.Sprintf("%s:%s", c, d.Types[c]))
	}
	sort.Strings(cols)
	sum := md5.Sum([]byte(strings.Join(cols, ",")))
	return hex.EncodeToString(sum[:])[:8]
}

// TraitSignature is a stable digest over the declared export and import
// names and descriptions.
func (d DataContext) TraitSignature() string {
	if len(d.Exports) == 0 && len(d.Imports) == 0 {
		return ""
	}
	sig := struct {
		Exports [][2]string `json:"exports"`
		Imports [][2]string `json:"imports"`
	}{
		Exports: sortedPairs(d.Exports),
		Imports: sortedPairs(d.Imports),
	}
	raw, _ := json.Marshal(sig)
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])[:8]
}

func sortedPairs(m map[string]string) [][2]string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}
