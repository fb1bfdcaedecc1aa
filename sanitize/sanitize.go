// Package sanitize implements the router's prompt-sanitisation pipeline:
// control-character scrubbing, whitespace normalisation, length validation,
// and advisory prompt-injection heuristics. Detection is defence-in-depth
// only — it never rewrites or rejects a prompt for matching a pattern.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const defaultMaxLength = 100_000

// tokenEncoding is the shared cl100k_base encoder used for advisory token
// counts. It is loaded lazily and only once: tiktoken-go fetches its BPE
// ranks on first use, and a prompt we can't encode still validates on the
// character limit above.
var (
	tokenEncodingOnce sync.Once
	tokenEncoding     *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	tokenEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoding = enc
		}
	})
	return tokenEncoding
}

// EstimateTokens returns a rough cl100k_base token count for text, used for
// advisory accounting alongside the authoritative character limit and as a
// local fallback when a provider's usage response omits token counts. It
// returns 0 if the encoder could not be loaded.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := encoder()
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// injectionPatterns is the fixed, case-insensitive pattern table applied to
// the sanitised prompt. Order matches the catalogue so log output is
// consistent across runs.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(the\s+)?above`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)^(you\s+are|act\s+as\s+if|pretend\s+you\s+are)`),
	regexp.MustCompile("(?i)```\\s*system"),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`(?i)<<SYS>>`),
	regexp.MustCompile(`(?i)<\|im_start\|>`),
}

var controlChars = regexp.MustCompile("[\x00-\x08\x0B-\x0C\x0E-\x1F\x7F]")
var whitespaceRun = regexp.MustCompile(`[^\S\n]+`)

// Options configures the validation pipeline; the zero value is the default
// policy (100,000 char limit, injection heuristic enabled).
type Options struct {
	MaxLength      int
	DisableInjectionCheck bool
}

// Result is the outcome of validating and sanitising a prompt.
type Result struct {
	Valid           bool
	Sanitized       string
	Errors          []string
	Warnings        []string
	EstimatedTokens int
}

// Sanitize applies the control-character scrub, whitespace collapse, and
// blank-line trimming transformations. It is idempotent: Sanitize(Sanitize(x))
// == Sanitize(x).
func Sanitize(prompt string) string {
	stripped := controlChars.ReplaceAllString(prompt, "")
	collapsed := whitespaceRun.ReplaceAllString(stripped, " ")

	lines := strings.Split(collapsed, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	start := 0
	for start < len(lines) && lines[start] == "" {
		start++
	}
	end := len(lines)
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// ValidatePromptLength checks sanitized against the configured (or default)
// maximum, returning a user-friendly error string, or "" if valid.
func ValidatePromptLength(sanitized string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	if sanitized == "" {
		return "Prompt cannot be empty"
	}
	n := len([]rune(sanitized))
	if n > maxLength {
		return fmt.Sprintf("Prompt exceeds maximum length of %d characters (got %d)", maxLength, n)
	}
	return ""
}

// DetectInjectionPatterns returns a warning per matched pattern in the
// fixed table; an empty slice means no matches. Detection is advisory only.
func DetectInjectionPatterns(sanitized string) []string {
	var warnings []string
	for _, p := range injectionPatterns {
		if p.MatchString(sanitized) {
			warnings = append(warnings, fmt.Sprintf("possible prompt injection pattern matched: %s", p.String()))
		}
	}
	return warnings
}

// ValidatePrompt runs the full pipeline: sanitise, length-check, then the
// injection heuristic. It never panics; errors are always user-friendly
// strings. log, if non-nil, receives a scoped component logger for the
// injection-warning audit trail; a nil logger is a no-op (zap.NewNop()).
func ValidatePrompt(prompt string, opts Options, log *zap.Logger) Result {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "sanitize"))

	sanitized := Sanitize(prompt)
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}

	if errMsg := ValidatePromptLength(sanitized, maxLength); errMsg != "" {
		return Result{Valid: false, Sanitized: sanitized, Errors: []string{errMsg}}
	}

	var warnings []string
	if !opts.DisableInjectionCheck {
		warnings = DetectInjectionPatterns(sanitized)
		if len(warnings) > 0 {
			preview := sanitized
			if len(preview) > 200 {
				preview = preview[:200]
			}
			log.Warn("possible prompt injection detected",
				zap.Int("pattern_count", len(warnings)),
				zap.String("prompt_preview", preview),
			)
		}
	}

	return Result{Valid: true, Sanitized: sanitized, Warnings: warnings, EstimatedTokens: EstimateTokens(sanitized)}
}
