// Package format reshapes raw model output into the narration/dialogue
// convention personas reply in: narration lines wrapped in asterisks,
// spoken lines wrapped in quotation marks, one beat per line, with the
// whole reply held under a persona-configured ideographic length budget.
//
// Formatting never fails. Malformed input produces the best partial result
// the rules allow, never an error.
package format

import (
	"regexp"
	"strings"
)

// Default output constraints applied when a persona config does not set
// its own.
const (
	DefaultMaxLength   = 150
	DefaultFormatRules = "旁白无需括号，每条旁白与独白必须换行"
	DefaultExample     = "*他低头看着怀里的猫*\n\"所有靠近我的人都会受伤。\""
)

// Format rule fragments recognized inside a persona's format-rules string.
// Each enables one optional rewrite pass.
const (
	ruleBareNarration = "旁白无需括号"
	ruleLineBreaks    = "每条旁白与独白必须换行"
)

// minTruncateRatio guards sentence-boundary truncation: when the greedy cut
// keeps less than this share of the budget, fall back to a hard cut.
const minTruncateRatio = 0.3

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Bracket styles rewritten into asterisk narration, most specific first.
	bracketRes = []*regexp.Regexp{
		regexp.MustCompile(`\*\((.*?)\)\*`), // *(...)*
		regexp.MustCompile(`（(.*?)）`),       // full-width parens
		regexp.MustCompile(`\((.*?)\)`),     // (...)
		regexp.MustCompile(`【(.*?)】`),       // lenticular brackets
		regexp.MustCompile(`\[(.*?)\]`),     // [...]
	}

	// spanRe splits a mixed line into narration and dialogue spans.
	spanRe = regexp.MustCompile(`(\*[^*]*\*|"[^"]*")`)

	// sentenceEndRe splits on sentence-final punctuation, which is retained
	// with its preceding clause during truncation.
	sentenceEndRe = regexp.MustCompile(`([。！？.!?])`)
)

// Format normalizes whitespace, truncates rawText to maxLength ideographic
// characters, and applies the line-level narration/dialogue convention
// selected by formatRules. A maxLength of zero or below falls back to
// DefaultMaxLength; an empty formatRules falls back to DefaultFormatRules.
func Format(rawText string, maxLength int, formatRules string) string {
	if rawText == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if formatRules == "" {
		formatRules = DefaultFormatRules
	}

	text := strings.TrimSpace(whitespaceRe.ReplaceAllString(rawText, " "))

	if CountIdeographs(text) > maxLength {
		text = Truncate(text, maxLength)
	}

	if strings.Contains(formatRules, ruleBareNarration) {
		text = rewriteNarration(text)
	}
	if strings.Contains(formatRules, ruleLineBreaks) {
		text = splitMixedLines(text)
	}

	return wrapLines(text)
}

// CountIdeographs counts CJK unified ideographs; the length budget is
// denominated in these, so Latin filler does not eat into it.
func CountIdeographs(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			n++
		}
	}
	return n
}

// Truncate cuts text at sentence boundaries so that at most maxLength
// ideographic characters remain, falling back to a hard per-character cut
// when the sentence cut keeps implausibly little. An ellipsis marker is
// appended only when content was actually removed.
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if CountIdeographs(text) <= maxLength {
		return text
	}

	truncated := ""
	for _, sentence := range splitSentences(text) {
		candidate := truncated + sentence
		if CountIdeographs(candidate) > maxLength {
			break
		}
		truncated = candidate
	}

	if float64(CountIdeographs(truncated)) < float64(maxLength)*minTruncateRatio {
		truncated = hardCut(text, maxLength)
	}

	if len(truncated) < len(text) {
		truncated = strings.TrimRight(truncated, "，。！？,.!?") + "..."
	}
	return truncated
}

// splitSentences splits text into clauses, each carrying its terminating
// punctuation mark.
func splitSentences(text string) []string {
	parts := sentenceEndRe.Split(text, -1)
	marks := sentenceEndRe.FindAllString(text, -1)

	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(marks) {
			part += marks[i]
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// hardCut keeps everything up to and including the maxLength-th ideograph.
func hardCut(text string, maxLength int) string {
	count := 0
	for i, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			count++
			if count >= maxLength {
				return text[:i+len(string(r))]
			}
		}
	}
	return text
}

// rewriteNarration converts common bracket styles into asterisk narration.
func rewriteNarration(text string) string {
	for _, re := range bracketRes {
		text = re.ReplaceAllString(text, "*$1*")
	}
	return text
}

// splitMixedLines puts each narration span and each dialogue span of a mixed
// line on its own line.
func splitMixedLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, `"`) && strings.Contains(line, "*") {
			out = append(out, splitSpans(line)...)
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// splitSpans breaks a mixed line into its narration and dialogue spans plus
// any loose text between them, preserving order.
func splitSpans(line string) []string {
	var parts []string
	last := 0
	for _, loc := range spanRe.FindAllStringIndex(line, -1) {
		if between := strings.TrimSpace(line[last:loc[0]]); between != "" {
			parts = append(parts, between)
		}
		parts = append(parts, line[loc[0]:loc[1]])
		last = loc[1]
	}
	if tail := strings.TrimSpace(line[last:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

// wrapLines applies the per-line convention: keep asterisk-bracketed
// narration as-is, wrap anything not already quoted in quotation marks, and
// drop empty lines.
func wrapLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "*") && strings.HasSuffix(line, "*") && len(line) > 1:
			out = append(out, "*"+strings.TrimSpace(strings.Trim(line, "*"))+"*")
		case strings.HasPrefix(line, `"`):
			out = append(out, line)
		default:
			out = append(out, `"`+line+`"`)
		}
	}
	return strings.Join(out, "\n")
}
