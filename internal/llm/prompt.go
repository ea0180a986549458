package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"vibewidget/internal/artifact"
)

var (
	reFenceOpen  = regexp.MustCompile("```(?:javascript|jsx?|typescript|tsx?)?\\s*\n?")
	reFenceClose = regexp.MustCompile("\n?```\\s*")
)

// CleanCode strips markdown fencing the collaborator may wrap around the
// module text despite instructions.
func CleanCode(code string) string {
	if code == "" {
		return ""
	}
	code = reFenceOpen.ReplaceAllString(code, "")
	code = reFenceClose.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

// BuildGenerationPrompt assembles the fresh-generation prompt from the
// instruction, the data schema plus sample, declared traits, and theme text.
func BuildGenerationPrompt(description string, dc artifact.DataContext, theme string) string {
	var b strings.Builder
	b.WriteString("You are an expert JavaScript + React developer building an interactive visualization module.\n\n")
	fmt.Fprintf(&b, "TASK: %s\n\n", description)
	writeDataSection(&b, dc)
	writeTraitSection(&b, dc)
	writeThemeSection(&b, theme)
	writeContract(&b)
	return b.String()
}

// BuildRevisionPrompt assembles the targeted-edit prompt. The composition
// section carries the source code and, for a component reference, the
// narrowed set of components to focus on.
func BuildRevisionPrompt(description string, src artifact.ResolvedSource, dc artifact.DataContext, theme string) string {
	var b strings.Builder
	b.WriteString("Revise the following visualization module according to the request. ")
	b.WriteString("Prefer minimal, targeted edits over wholesale rewrites.\n\n")
	fmt.Fprintf(&b, "REVISION REQUEST: %s\n\n", description)
	fmt.Fprintf(&b, "CURRENT CODE:\n%s\n\n", src.Code)
	if len(src.FocusComponents) > 0 {
		fmt.Fprintf(&b, "FOCUS on these exported components: %s\n", strings.Join(src.FocusComponents, ", "))
		b.WriteString("Modify only what the request needs; reuse the other components untouched.\n\n")
	}
	writeDataSection(&b, dc)
	writeTraitSection(&b, dc)
	writeThemeSection(&b, theme)
	writeContract(&b)
	return b.String()
}

// BuildRepairPrompt assembles the patch prompt from broken code plus the
// runtime diagnostic.
func BuildRepairPrompt(code, errorMessage string, dc artifact.DataContext) string {
	var b strings.Builder
	b.WriteString("The following visualization module throws at runtime. Fix the error and return the full corrected module.\n\n")
	fmt.Fprintf(&b, "ERROR:\n%s\n\n", errorMessage)
	fmt.Fprintf(&b, "BROKEN CODE:\n%s\n\n", code)
	writeDataSection(&b, dc)
	b.WriteString("Change only what the fix requires. Return only the corrected JavaScript, no fences, no explanations.\n")
	return b.String()
}

func writeDataSection(b *strings.Builder, dc artifact.DataContext) {
	if len(dc.Columns) == 0 {
		b.WriteString("Data schema: no data (module is driven by imported traits only)\n\n")
		return
	}
	fmt.Fprintf(b, "Data schema:\n- Columns: %s\n", strings.Join(dc.Columns, ", "))
	if len(dc.Types) > 0 {
		types, _ := json.Marshal(dc.Types)
		fmt.Fprintf(b, "- Types: %s\n", types)
	}
	if sample := dc.SampleRecords(); len(sample) > 0 {
		raw, _ := json.Marshal(sample)
		fmt.Fprintf(b, "- Sample rows: %s\n", raw)
	}
	b.WriteString("\n")
}

func writeTraitSection(b *strings.Builder, dc artifact.DataContext) {
	if len(dc.Exports) == 0 && len(dc.Imports) == 0 {
		return
	}
	b.WriteString("STATE TRAITS:\n")
	for _, pair := range sortedTraitLines(dc.Exports) {
		fmt.Fprintf(b, "- export %s: %s (initialize immediately, update on interaction, call model.save_changes() each time)\n", pair[0], pair[1])
	}
	for _, pair := range sortedTraitLines(dc.Imports) {
		fmt.Fprintf(b, "- import %s: %s (read-only; subscribe with model.on(\"change:%s\", handler) and unsubscribe in cleanup)\n", pair[0], pair[1], pair[0])
	}
	b.WriteString("\n")
}

func writeThemeSection(b *strings.Builder, theme string) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return
	}
	fmt.Fprintf(b, "THEME:\n%s\n\n", theme)
}

func writeContract(b *strings.Builder) {
	b.WriteString(`RULES:
1. Export a default function: export default function Widget({ model, html, React }) { ... }
2. Use html tagged templates (htm) for markup, no JSX
3. Access data with model.get("data") and treat it as immutable
4. Import libraries from an ESM CDN with locked versions (d3@7, three@0.160)
5. Every React.useEffect must return a cleanup that tears down listeners and resources
6. Export reusable UI parts (sliders, legends, tooltips) as capitalized named exports
7. Return only the working JavaScript code, no markdown fences, no explanations
`)
}

func sortedTraitLines(m map[string]string) [][2]string {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([][2]string, 0, len(names))
	for _, n := range names {
		out = append(out, [2]string{n, m[n]})
	}
	return out
}
