// Package moderation screens player input and DM output for blocked content
// categories and sanitizes what can be salvaged.
package moderation

import (
	"fmt"
	"log"
	"regexp"
)

// RedactionMarker replaces blocked keywords during sanitization.
const RedactionMarker = "[REDACTED]"

// Settings configures the moderator.
type Settings struct {
	Enabled         bool
	BlockNSFW       bool
	BlockHarassment bool
	MaxInputLength  int
}

// DefaultSettings returns the shipped moderation configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		BlockNSFW:       true,
		BlockHarassment: true,
		MaxInputLength:  5000,
	}
}

// Result is the outcome of a moderation pass. A safe result has no
// violations; an unsafe result must be rejected by the caller; a sanitized
// result carries violations together with cleaned text the caller may use.
type Result struct {
	IsSafe           bool
	Violations       []string
	SanitizedContent string
}

// HasViolations reports whether any violations were detected.
func (r Result) HasViolations() bool {
	return len(r.Violations) > 0
}

// WasSanitized reports whether cleaned substitute text is available.
func (r Result) WasSanitized() bool {
	return r.SanitizedContent != ""
}

// Safe returns a result with no violations.
func Safe() Result {
	return Result{IsSafe: true}
}

// Unsafe returns a terminal rejection carrying the violations.
func Unsafe(violations ...string) Result {
	return Result{IsSafe: false, Violations: violations}
}

// Sanitized returns a result with violations and a cleaned substitute.
func Sanitized(content string, violations ...string) Result {
	return Result{IsSafe: true, Violations: violations, SanitizedContent: content}
}

// Basic blocklists. Production deployments would plug in a real
// classification service behind the same interface.
var (
	nsfwKeywords       = []string{"explicit", "nsfw", "sexual", "nude", "naked"}
	harassmentKeywords = []string{"kill yourself", "kys", "hate", "racist", "slur"}

	asteriskRuns = regexp.MustCompile(`\*{3,}`)
)

// Moderator performs case-insensitive whole-word keyword screening.
type Moderator struct {
	settings   Settings
	nsfw       []*regexp.Regexp
	harassment []*regexp.Regexp
}

// New creates a moderator with the given settings.
func New(settings Settings) *Moderator {
	return &Moderator{
		settings:   settings,
		nsfw:       compileKeywords(nsfwKeywords),
		harassment: compileKeywords(harassmentKeywords),
	}
}

// compileKeywords builds word-boundary patterns so partial matches like
// "hateful" do not trigger the "hate" keyword.
func compileKeywords(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(keywords))
	for i, keyword := range keywords {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	}
	return patterns
}

// ModerateInput screens a player utterance. Input violations are terminal:
// no sanitized substitute is offered and the caller must reject the input.
// Overlong input is reported as its own violation category.
func (m *Moderator) ModerateInput(content string) Result {
	if !m.settings.Enabled {
		return Safe()
	}

	var violations []string
	if m.settings.BlockNSFW && matchAny(m.nsfw, content) {
		violations = append(violations, "NSFW content detected")
		log.Printf("[MODERATION] NSFW content blocked in player input")
	}
	if m.settings.BlockHarassment && matchAny(m.harassment, content) {
		violations = append(violations, "Harassment or hate speech detected")
		log.Printf("[MODERATION] Harassment content blocked in player input")
	}
	if len(content) > m.settings.MaxInputLength {
		violations = append(violations, fmt.Sprintf("Input too long (max %d characters)", m.settings.MaxInputLength))
	}

	if len(violations) > 0 {
		return Unsafe(violations...)
	}
	return Safe()
}

// ModerateOutput screens generated text. Output violations are non-terminal:
// a sanitized substitute is always produced so the caller may proceed while
// knowing moderation intervened.
func (m *Moderator) ModerateOutput(content string) Result {
	if !m.settings.Enabled {
		return Safe()
	}

	var violations []string
	if m.settings.BlockNSFW && matchAny(m.nsfw, content) {
		violations = append(violations, "Inappropriate content in response")
		log.Printf("[MODERATION] NSFW content detected in output")
	}
	if m.settings.BlockHarassment && matchAny(m.harassment, content) {
		violations = append(violations, "Potentially harmful content in response")
		log.Printf("[MODERATION] Harassment content detected in output")
	}

	if len(violations) > 0 {
		return Sanitized(m.Sanitize(content), violations...)
	}
	return Safe()
}

// Sanitize replaces every blocked keyword, across both category sets, with
// the redaction marker and collapses runs of asterisks. Sanitizing already
// sanitized text returns it unchanged.
func (m *Moderator) Sanitize(content string) string {
	sanitized := content
	for _, pattern := range m.nsfw {
		sanitized = pattern.ReplaceAllString(sanitized, RedactionMarker)
	}
	for _, pattern := range m.harassment {
		sanitized = pattern.ReplaceAllString(sanitized, RedactionMarker)
	}
	sanitized = asteriskRuns.ReplaceAllString(sanitized, "***")

	if sanitized != content {
		log.Printf("[MODERATION] Content sanitized (%d -> %d characters)", len(content), len(sanitized))
	}
	return sanitized
}

func matchAny(patterns []*regexp.Regexp, content string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}
