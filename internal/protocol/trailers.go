// Package protocol implements the Arborist protocol-commit codec: the
// subject grammar and trailer block that make git history the single
// source of truth for task state, plus the branch-scoped log reader used
// to recover it.
package protocol

import (
	"regexp"
	"sort"
	"strings"
)

// Trailer keys, in the fixed canonical order they are written in.
const (
	KeyStep       = "Arborist-Step"
	KeyResult     = "Arborist-Result"
	KeyTest       = "Arborist-Test"
	KeyTestType   = "Arborist-Test-Type"
	KeyTestPassed = "Arborist-Test-Passed"
	KeyTestFailed = "Arborist-Test-Failed"
	KeyTestSkip   = "Arborist-Test-Skipped"
	KeyTestTime   = "Arborist-Test-Runtime"
	KeyReview     = "Arborist-Review"
	KeyRetry      = "Arborist-Retry"
	KeyReport     = "Arborist-Report"
	KeyTestLog    = "Arborist-Test-Log"
	KeyReviewLog  = "Arborist-Review-Log"
)

// canonicalOrder fixes the order trailers are emitted in so round-tripped
// commits are byte-identical given identical inputs and diffs stay reviewable.
var canonicalOrder = []string{
	KeyStep,
	KeyResult,
	KeyTest,
	KeyTestType,
	KeyTestPassed,
	KeyTestFailed,
	KeyTestSkip,
	KeyTestTime,
	KeyReview,
	KeyRetry,
	KeyReport,
	KeyTestLog,
	KeyReviewLog,
}

// Trailers is an unordered map of key/value pairs; Render emits them in
// canonical order. Lookups are case-sensitive
// exact-key matches, matching the trailer grammar's key charset.
type Trailers map[string]string

var trailerLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*): (.*)$`)

// ParseTrailers scans body for the contiguous block of `Key: Value` lines
// at its end and returns them. Duplicate keys resolve last-wins. Unknown
// keys are preserved verbatim.
func ParseTrailers(body string) Trailers {
	lines := strings.Split(body, "\n")

	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	start := end
	for start > 0 && trailerLineRe.MatchString(lines[start-1]) {
		start--
	}

	out := make(Trailers, end-start)
	for _, line := range lines[start:end] {
		m := trailerLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out[m[1]] = m[2]
	}
	return out
}

// Render writes t as a canonically-ordered trailer block, one `Key: Value`
// line per entry. Keys outside canonicalOrder are appended afterward in
// sorted order so unknown/custom trailers still round-trip deterministically.
func (t Trailers) Render() string {
	var b strings.Builder
	seen := make(map[string]bool, len(t))
	for _, key := range canonicalOrder {
		if v, ok := t[key]; ok {
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
			seen[key] = true
		}
	}
	var extra []string
	for k := range t {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(t[k])
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
