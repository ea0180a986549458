package orchestrator

import (
	"errors"
	"strings"
)

// RepairBudget is how many automatic patch attempts an artifact gets before
// its failure becomes terminal and user-visible.
const RepairBudget = 2

var (
	// ErrGenerationUnavailable: the collaborator cannot be reached. Fatal,
	// surfaced immediately, consumes no repair budget.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	// ErrStaticValidationFailed: the returned module has no default export.
	// Treated like a runtime failure and absorbed into the repair loop.
	ErrStaticValidationFailed = errors.New("static validation failed: module has no default export")
	// ErrRetriesExhausted: terminal, user-visible after the budget is spent.
	ErrRetriesExhausted = errors.New("automatic repair attempts exhausted")
)

// Hint classifies a raw failure message into a short suggestion shown next
// to the terminal error.
func Hint(errorMessage string) string {
	msg := strings.ToLower(errorMessage)
	switch {
	case strings.Contains(msg, "is not defined"),
		strings.Contains(msg, "is not a function"),
		strings.Contains(msg, "cannot find module"),
		strings.Contains(msg, "failed to resolve"):
		return "A library or symbol the module references is missing. Check the ESM import URLs and exported names."
	case strings.Contains(msg, "failed to fetch"),
		strings.Contains(msg, "networkerror"),
		strings.Contains(msg, "net::"),
		strings.Contains(msg, "cors"):
		return "A network request failed. The CDN or data endpoint may be unreachable from the host."
	case strings.Contains(msg, "syntaxerror"),
		strings.Contains(msg, "unexpected token"),
		strings.Contains(msg, "unexpected end of input"):
		return "The generated module has a syntax error. Regenerating with a new instruction usually resolves this."
	default:
		return "Inspect the stack trace below and retry, or rephrase the instruction."
	}
}
