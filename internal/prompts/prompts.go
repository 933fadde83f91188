// Package prompts carries the embedded system prompts for each
// transformation mode.
package prompts

import (
	_ "embed"

	"github.com/telltaleatheist/bookforge-sub001/internal/guard"
)

//go:embed cleanup.tmpl
var cleanupPrompt string

//go:embed simplify.tmpl
var simplifyPrompt string

// Cleanup returns the OCR-correction system prompt.
func Cleanup() string { return cleanupPrompt }

// Simplify returns the register-simplification system prompt.
func Simplify() string { return simplifyPrompt }

// ForMode returns the system prompt for a transformation mode.
func ForMode(mode guard.Mode) string {
	if mode == guard.ModeSimplify {
		return simplifyPrompt
	}
	return cleanupPrompt
}
