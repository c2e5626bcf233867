// Package screen inspects automation output for injected or concealed
// instructions before it reaches the caller. Screening is advisory-
// destructive: offending spans are replaced with a placeholder and every
// finding is surfaced, but no semantic repair of the surrounding text is
// attempted.
package screen

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind classifies a screening finding.
type Kind string

const (
	KindInvisibleText   Kind = "invisible_text"
	KindPromptInjection Kind = "prompt_injection"
	KindEncodedPayload  Kind = "encoded_payload"
	KindHiddenElement   Kind = "hidden_element"
)

// Finding is one detected payload: its kind, byte span in the original
// text, and a short excerpt.
type Finding struct {
	Kind    Kind   `json:"kind"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Excerpt string `json:"excerpt"`
}

// Result is the outcome of one screening pass.
type Result struct {
	Text     string    `json:"text"`
	Findings []Finding `json:"findings,omitempty"`
	Modified bool      `json:"modified"`
}

// Clean reports whether screening produced no findings.
func (r Result) Clean() bool { return len(r.Findings) == 0 }

// Warning summarizes finding kinds and counts for the caller-visible
// response. Empty when the text is clean.
func (r Result) Warning() string {
	if r.Clean() {
		return ""
	}
	counts := map[Kind]int{}
	order := []Kind{}
	for _, f := range r.Findings {
		if counts[f.Kind] == 0 {
			order = append(order, f.Kind)
		}
		counts[f.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s x%d", k, counts[k]))
	}
	return fmt.Sprintf("content screening found %d suspicious segment(s): %s",
		len(r.Findings), strings.Join(parts, ", "))
}

// invisibleRunes are zero-width or otherwise invisible code points used to
// smuggle text past human review.
var invisibleRunes = map[rune]bool{
	'\u200B': true, // zero-width space
	'\u200C': true, // zero-width non-joiner
	'\u200D': true, // zero-width joiner
	'\u2060': true, // word joiner
	'\uFEFF': true, // zero-width no-break space / BOM
	'\u00AD': true, // soft hyphen
}

// Screener detects injection and concealment techniques in text.
// Safe for concurrent use; the compiled pattern set never changes.
type Screener struct {
	cfg         Config
	injectionRe []*regexp.Regexp
	roleRe      []*regexp.Regexp
	base64Re    *regexp.Regexp
	hexRe       *regexp.Regexp
}

// New compiles a Screener from the given pattern config. Zero-valued
// thresholds and an empty placeholder take the built-in defaults.
func New(cfg Config) *Screener {
	if cfg.MinBase64Run <= 0 {
		cfg.MinBase64Run = DefaultConfig().MinBase64Run
	}
	if cfg.MinHexRun <= 0 {
		cfg.MinHexRun = DefaultConfig().MinHexRun
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = DefaultConfig().Placeholder
	}
	s := &Screener{cfg: cfg}
	s.base64Re = regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9+/]{%d,}={0,2}`, cfg.MinBase64Run))
	s.hexRe = regexp.MustCompile(fmt.Sprintf(`(?i)\b[0-9a-f]{%d,}\b`, cfg.MinHexRun))
	for _, phrase := range cfg.InjectionPhrases {
		s.injectionRe = append(s.injectionRe,
			regexp.MustCompile(`(?i)`+regexp.QuoteMeta(phrase)))
	}
	for _, marker := range cfg.RoleMarkers {
		// Bracketed markers are unambiguous anywhere; bare words like
		// "system:" only count at the start of a line.
		if strings.HasPrefix(marker, "<") || strings.HasPrefix(marker, "[") {
			s.roleRe = append(s.roleRe,
				regexp.MustCompile(`(?i)`+regexp.QuoteMeta(marker)))
		} else {
			s.roleRe = append(s.roleRe,
				regexp.MustCompile(`(?im)^[ \t]*`+regexp.QuoteMeta(marker)))
		}
	}
	return s
}

// Screen runs all detection passes over text and returns the sanitized
// result. It never fails: the worst case is the original text with no
// findings.
func (s *Screener) Screen(text string) Result {
	var findings []Finding

	findings = append(findings, s.scanInvisible(text)...)
	findings = append(findings, s.scanInjection(text)...)
	findings = append(findings, s.scanEncoded(text)...)
	findings = append(findings, s.scanMarkup(text)...)

	if len(findings) == 0 {
		return Result{Text: text}
	}

	return Result{
		Text:     s.sanitize(text, findings),
		Findings: findings,
		Modified: true,
	}
}

// scanInvisible finds contiguous runs of invisible code points.
func (s *Screener) scanInvisible(text string) []Finding {
	var findings []Finding
	runStart := -1
	for i, r := range text {
		if invisibleRunes[r] {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			findings = append(findings, invisibleFinding(text, runStart, i))
			runStart = -1
		}
	}
	if runStart >= 0 {
		findings = append(findings, invisibleFinding(text, runStart, len(text)))
	}
	return findings
}

func invisibleFinding(text string, start, end int) Finding {
	return Finding{
		Kind:    KindInvisibleText,
		Start:   start,
		End:     end,
		Excerpt: fmt.Sprintf("%d invisible code point(s)", len([]rune(text[start:end]))),
	}
}

// scanInjection matches the instruction-override phrase set and
// role-confusion markers.
func (s *Screener) scanInjection(text string) []Finding {
	var findings []Finding
	for _, re := range s.injectionRe {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Kind:    KindPromptInjection,
				Start:   loc[0],
				End:     loc[1],
				Excerpt: excerpt(text[loc[0]:loc[1]]),
			})
		}
	}
	for _, re := range s.roleRe {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Kind:    KindPromptInjection,
				Start:   loc[0],
				End:     loc[1],
				Excerpt: excerpt(text[loc[0]:loc[1]]),
			})
		}
	}
	return findings
}

// scanEncoded looks for long base64 or hex runs, decodes them
// speculatively, and re-scans the plaintext one level deep. A run is only a
// finding when its decoded form triggers another pass: long identifiers and
// hashes are everyday content.
func (s *Screener) scanEncoded(text string) []Finding {
	var findings []Finding

	for _, loc := range s.base64Re.FindAllStringIndex(text, -1) {
		run := text[loc[0]:loc[1]]
		decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(run, "="))
		if err != nil {
			continue
		}
		if s.decodedSuspicious(string(decoded)) {
			findings = append(findings, Finding{
				Kind:    KindEncodedPayload,
				Start:   loc[0],
				End:     loc[1],
				Excerpt: excerpt(string(decoded)),
			})
		}
	}

	for _, loc := range s.hexRe.FindAllStringIndex(text, -1) {
		run := text[loc[0]:loc[1]]
		if len(run)%2 != 0 {
			continue
		}
		decoded, err := hex.DecodeString(run)
		if err != nil {
			continue
		}
		if s.decodedSuspicious(string(decoded)) {
			findings = append(findings, Finding{
				Kind:    KindEncodedPayload,
				Start:   loc[0],
				End:     loc[1],
				Excerpt: excerpt(string(decoded)),
			})
		}
	}

	return findings
}

// decodedSuspicious re-runs the phrase and invisible-text passes on decoded
// content. Depth is limited to one: decoded output is never decoded again.
func (s *Screener) decodedSuspicious(decoded string) bool {
	if len(s.scanInjection(decoded)) > 0 {
		return true
	}
	return len(s.scanInvisible(decoded)) > 0
}

// sanitize replaces each finding's span with the placeholder, merging
// overlapping spans so offsets stay consistent.
func (s *Screener) sanitize(text string, findings []Finding) string {
	spans := make([][2]int, 0, len(findings))
	for _, f := range findings {
		if f.Start < 0 || f.End > len(text) || f.Start >= f.End {
			continue
		}
		spans = append(spans, [2]int{f.Start, f.End})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var merged [][2]int
	for _, sp := range spans {
		if n := len(merged); n > 0 && sp[0] <= merged[n-1][1] {
			if sp[1] > merged[n-1][1] {
				merged[n-1][1] = sp[1]
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(text[prev:sp[0]])
		b.WriteString(s.cfg.Placeholder)
		prev = sp[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

const maxExcerptLen = 60

func excerpt(sample string) string {
	sample = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if invisibleRunes[r] {
			return -1
		}
		return r
	}, sample)
	if len(sample) > maxExcerptLen {
		return sample[:maxExcerptLen] + "..."
	}
	return sample
}
