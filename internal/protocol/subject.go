package protocol

import (
	"fmt"
	"strings"
)

// Step values (Arborist-Step).
const (
	StepImplement = "implement"
	StepTest      = "test"
	StepReview    = "review"
	StepComplete  = "complete"
)

// Result values (Arborist-Result / Arborist-Test / Arborist-Review).
const (
	ResultPass = "pass"
	ResultFail = "fail"

	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// Status is one of the closed set of protocol-commit statuses embedded in
// the subject line.
type Status string

const (
	StatusImplementPass    Status = "implement-pass"
	StatusImplementFail    Status = "implement-fail"
	StatusTestPass         Status = "test-pass"
	StatusTestFail         Status = "test-fail"
	StatusReviewApproved   Status = "review-approved"
	StatusReviewRejected   Status = "review-rejected"
	StatusComplete         Status = "complete"
	StatusFailed           Status = "failed"
)

// SubjectPrefix returns the literal, fixed-string-grep-safe prefix for every
// protocol commit on branch (spec §4.2: "task({branch}@" ).
func SubjectPrefix(branch string) string {
	return fmt.Sprintf("task(%s@", branch)
}

// TaskPrefix returns the literal prefix scoping to one task on one branch
// (spec §4.2: "task({branch}@{task_id}@" ).
func TaskPrefix(branch, taskID string) string {
	return fmt.Sprintf("task(%s@%s@", branch, taskID)
}

// ComposeSubject builds the subject line per spec §3.2's grammar:
// task({branch}@{task_id}@{status}): {free text}
func ComposeSubject(branch, taskID string, status Status, freeText string) string {
	return fmt.Sprintf("task(%s@%s@%s): %s", branch, taskID, status, freeText)
}

// ParsedSubject is the decomposed form of a protocol-commit subject line.
type ParsedSubject struct {
	Branch   string
	TaskID   string
	Status   Status
	FreeText string
}

// ParseSubject decomposes a subject line produced by ComposeSubject. It
// returns ok=false for any line that doesn't match the grammar (e.g. a
// commit made outside the protocol).
func ParseSubject(line string) (ParsedSubject, bool) {
	if !strings.HasPrefix(line, "task(") {
		return ParsedSubject{}, false
	}
	rest := strings.TrimPrefix(line, "task(")
	closeIdx := strings.Index(rest, "): ")
	if closeIdx < 0 {
		return ParsedSubject{}, false
	}
	header := rest[:closeIdx]
	freeText := rest[closeIdx+len("): "):]

	// header is "{branch}@{task_id}@{status}". task_id and status never
	// contain "@", but branch may contain slashes (never "@").
	lastAt := strings.LastIndex(header, "@")
	if lastAt < 0 {
		return ParsedSubject{}, false
	}
	status := header[lastAt+1:]
	rest2 := header[:lastAt]
	secondAt := strings.LastIndex(rest2, "@")
	if secondAt < 0 {
		return ParsedSubject{}, false
	}
	branch := rest2[:secondAt]
	taskID := rest2[secondAt+1:]
	if branch == "" || taskID == "" || status == "" {
		return ParsedSubject{}, false
	}

	return ParsedSubject{
		Branch:   branch,
		TaskID:   taskID,
		Status:   Status(status),
		FreeText: freeText,
	}, true
}
