package garden

import (
	"fmt"
	"strings"

	"github.com/pennyworth-tech/arborist/internal/protocol"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// buildImplementPrompt constructs the prompt for IMPLEMENT(attempt): the
// task description, a feedback block reconstructed from the previous
// attempt's failure commits when attempt > 0, and the task's test
// commands listed verbatim.
func buildImplementPrompt(task *tree.TaskNode, attempt int, previous []protocol.Commit) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Task: %s (%s)\n\n", task.Name, task.ID)
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Description)
	}

	if attempt > 0 {
		if fb := buildFeedbackBlock(previous); fb != "" {
			b.WriteString("## Feedback from previous attempt\n")
			b.WriteString(fb)
			b.WriteString("\n\n")
		}
	}

	if len(task.TestCommands) > 0 {
		b.WriteString("## Acceptance criteria (test commands)\n")
		for _, tc := range task.TestCommands {
			fmt.Fprintf(&b, "- [%s] %s\n", tc.Type, tc.Command)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// buildFeedbackBlock reconstructs a feedback block from the most recent
// attempt's implement-fail, test-fail and/or review-rejected commits, all
// stored in commit bodies — no sidecar needed per spec §4.5.
func buildFeedbackBlock(previous []protocol.Commit) string {
	var b strings.Builder
	for _, c := range previous {
		switch c.Subject.Status {
		case protocol.StatusTestFail:
			b.WriteString("Test failure output:\n")
			b.WriteString(tail(c.Body, 4000))
			b.WriteString("\n")
		case protocol.StatusReviewRejected:
			b.WriteString("Review rejection reason:\n")
			b.WriteString(tail(c.Body, 2000))
			b.WriteString("\n")
		case protocol.StatusImplementFail:
			b.WriteString("Previous implement attempt failed:\n")
			b.WriteString(tail(c.Body, 2000))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// buildReviewPrompt constructs the review prompt: task description, the
// diff introduced by this attempt's implement+test commits, and explicit
// instructions for the verdict token.
func buildReviewPrompt(task *tree.TaskNode, diff string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task: %s (%s)\n\n", task.Name, task.ID)
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Description)
	}
	b.WriteString("## Diff introduced by this attempt\n```diff\n")
	b.WriteString(diff)
	b.WriteString("\n```\n\n")
	b.WriteString("## Instructions\n")
	b.WriteString("Review the diff against the task description and acceptance criteria.\n")
	b.WriteString("End your response with exactly one final line: `APPROVED` if the change is correct and complete, or `REJECTED: <reason>` otherwise.\n")
	return b.String()
}

// tail returns at most n trailing bytes of s, a cheap truncation so large
// captured output doesn't blow out the next prompt.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "...(truncated)...\n" + s[len(s)-n:]
}
