package artifact

import (
	"strings"
	"testing"
)

func sampleDataContext() DataContext {
	return DataContext{
		Columns: []string{"region", "revenue"},
		Types:   map[string]string{"region": "string", "revenue": "float"},
		Rows:    120,
		Exports: map[string]string{"selected": "selected region names"},
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	dc := sampleDataContext()
	a := NewCacheKey("show revenue by region", dc, "dark")
	b := NewCacheKey("show revenue by region", dc, "dark")
	if a.ID() != b.ID() {
		t.Fatalf("same inputs produced different ids: %s vs %s", a.ID(), b.ID())
	}
	if len(a.ID()) != idLen {
		t.Fatalf("id length = %d, want %d", len(a.ID()), idLen)
	}
}

func TestCacheKeyNormalizesWhitespace(t *testing.T) {
	dc := sampleDataContext()
	a := NewCacheKey("show   revenue\n\tby region", dc, "")
	b := NewCacheKey("show revenue by region", dc, "")
	if a.ID() != b.ID() {
		t.Fatalf("reformatted description missed the cache: %s vs %s", a.ID(), b.ID())
	}
}

func TestCacheKeyComponentsChangeID(t *testing.T) {
	dc := sampleDataContext()
	base := NewCacheKey("show revenue by region", dc, "")

	if got := NewCacheKey("show revenue by city", dc, ""); got.ID() == base.ID() {
		t.Fatalf("different description, same id %s", base.ID())
	}
	if got := NewCacheKey("show revenue by region", dc, "dark"); got.ID() == base.ID() {
		t.Fatalf("different theme, same id %s", base.ID())
	}

	reshaped := dc
	reshaped.Columns = []string{"region", "revenue", "year"}
	reshaped.Types = map[string]string{"region": "string", "revenue": "float", "year": "int"}
	if got := NewCacheKey("show revenue by region", reshaped, ""); got.ID() == base.ID() {
		t.Fatalf("different data shape, same id %s", base.ID())
	}

	retraited := dc
	retraited.Exports = map[string]string{"selected": "selected region names", "hovered": "row under cursor"}
	if got := NewCacheKey("show revenue by region", retraited, ""); got.ID() == base.ID() {
		t.Fatalf("different trait surface, same id %s", base.ID())
	}
}

func TestCacheKeyIgnoresDataContent(t *testing.T) {
	dc := sampleDataContext()
	more := dc
	more.Rows = 100000
	more.Sample = []map[string]any{{"region": "EMEA", "revenue": 12.5}}
	a := NewCacheKey("show revenue by region", dc, "")
	b := NewCacheKey("show revenue by region", more, "")
	if a.ID() != b.ID() {
		t.Fatalf("row count or sample content leaked into the key: %s vs %s", a.ID(), b.ID())
	}
}

func TestParseRef(t *testing.T) {
	id, version, err := ParseRef("abc123def456")
	if err != nil {
		t.Fatalf("bare id: %v", err)
	}
	if id != "abc123def456" || version != 0 {
		t.Fatalf("bare id parsed as %q@%d", id, version)
	}

	id, version, err = ParseRef("abc123def456@3")
	if err != nil {
		t.Fatalf("versioned ref: %v", err)
	}
	if id != "abc123def456" || version != 3 {
		t.Fatalf("versioned ref parsed as %q@%d", id, version)
	}

	for _, bad := range []string{"", "@2", "abc@0", "abc@-1", "abc@x"} {
		if _, _, err := ParseRef(bad); err == nil {
			t.Fatalf("ParseRef(%q) accepted", bad)
		}
	}

	if got := Ref("abc", 2); got != "abc@2" {
		t.Fatalf("Ref = %q", got)
	}
}

func TestNormalizeDescription(t *testing.T) {
	if got := NormalizeDescription("  a \t b\n c  "); got != "a b c" {
		t.Fatalf("NormalizeDescription = %q", got)
	}
	if got := NormalizeDescription(strings.Repeat(" ", 5)); got != "" {
		t.Fatalf("whitespace-only description = %q", got)
	}
}
