package testexec

import (
	"regexp"
	"strconv"
)

// ParseCounts applies the three framework heuristics from pytest, common JS
// test runners, and `go test`, in that order, and returns the first one that
// matches. It never runs additional tooling — pure pattern matching over
// captured output. Any count that a given framework's summary line omits
// stays nil rather than being defaulted to zero, since an omitted bucket
// means "the framework didn't report this", not "zero".
func ParseCounts(output string) (passed, failed, skipped *int) {
	if p, f, s, ok := parsePytest(output); ok {
		return p, f, s
	}
	if p, f, s, ok := parseJSRunner(output); ok {
		return p, f, s
	}
	if p, f, s, ok := parseGoTest(output); ok {
		return p, f, s
	}
	return nil, nil, nil
}

var (
	pytestPassedRe  = regexp.MustCompile(`(\d+) passed`)
	pytestFailedRe  = regexp.MustCompile(`(\d+) failed`)
	pytestSkippedRe = regexp.MustCompile(`(\d+) skipped`)
	pytestXfailedRe = regexp.MustCompile(`(\d+) xfailed`)
)

// parsePytest matches pytest's terminal summary line, e.g.:
//
//	"12 passed, 2 failed, 1 skipped, 1 xfailed in 3.21s"
func parsePytest(output string) (passed, failed, skipped *int, ok bool) {
	pm := pytestPassedRe.FindStringSubmatch(output)
	fm := pytestFailedRe.FindStringSubmatch(output)
	sm := pytestSkippedRe.FindStringSubmatch(output)
	xm := pytestXfailedRe.FindStringSubmatch(output)
	if pm == nil && fm == nil && sm == nil && xm == nil {
		return nil, nil, nil, false
	}
	passed = atoiPtr(pm)
	failed = atoiPtr(fm)
	skipped = sumPtr(atoiPtr(sm), atoiPtr(xm))
	return passed, failed, skipped, true
}

var jsRunnerRe = regexp.MustCompile(`Tests:\s*(?:(\d+) passed)?,?\s*(?:(\d+) failed)?,?\s*(?:(\d+) skipped)?`)

// parseJSRunner matches the common "Tests: N passed, N failed, N skipped"
// summary line emitted by jest-family runners.
func parseJSRunner(output string) (passed, failed, skipped *int, ok bool) {
	m := jsRunnerRe.FindStringSubmatch(output)
	if m == nil {
		return nil, nil, nil, false
	}
	if m[1] == "" && m[2] == "" && m[3] == "" {
		return nil, nil, nil, false
	}
	return numOrNil(m[1]), numOrNil(m[2]), numOrNil(m[3]), true
}

var (
	goPassRe  = regexp.MustCompile(`(?m)^--- PASS`)
	goFailRe  = regexp.MustCompile(`(?m)^--- FAIL`)
	goSkipRe  = regexp.MustCompile(`(?m)^--- SKIP`)
	goFinalRe = regexp.MustCompile(`(?m)^(PASS|FAIL)\s*$`)
)

// parseGoTest counts `--- PASS`/`--- FAIL`/`--- SKIP` per-test markers from
// `go test -v` output. It only applies when at least one such marker or a
// trailing bare PASS/FAIL line is present.
func parseGoTest(output string) (passed, failed, skipped *int, ok bool) {
	p := len(goPassRe.FindAllStringIndex(output, -1))
	f := len(goFailRe.FindAllStringIndex(output, -1))
	s := len(goSkipRe.FindAllStringIndex(output, -1))
	if p == 0 && f == 0 && s == 0 {
		if !goFinalRe.MatchString(output) {
			return nil, nil, nil, false
		}
	}
	return intPtr(p), intPtr(f), intPtr(s), true
}

func atoiPtr(m []string) *int {
	if m == nil {
		return nil
	}
	return numOrNil(m[1])
}

func numOrNil(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func intPtr(n int) *int { return &n }

func sumPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	sum := *a + *b
	return &sum
}
