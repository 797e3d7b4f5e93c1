// Package state derives a task's current state purely from the branch's
// protocol-commit log, never caching across calls — crash recovery and
// normal state queries are the same code path (spec Design Notes §9).
package state

import (
	"context"
	"fmt"

	"github.com/pennyworth-tech/arborist/internal/protocol"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// TaskState is the closed set of states a leaf can be in.
type TaskState string

const (
	Pending     TaskState = "pending"
	Implementing TaskState = "implementing"
	Testing     TaskState = "testing"
	Reviewing   TaskState = "reviewing"
	Complete    TaskState = "complete"
	Failed      TaskState = "failed"
)

// Reader derives task state from a branch's protocol log.
type Reader struct {
	Dir string
}

// NewReader returns a Reader rooted at dir (the repository working directory).
func NewReader(dir string) *Reader {
	return &Reader{Dir: dir}
}

// For returns the current TaskState for taskID on branch, newest-commit-wins.
func (r *Reader) For(ctx context.Context, branch, taskID string) (TaskState, error) {
	commits, err := protocol.LogForTask(ctx, r.Dir, branch, taskID)
	if err != nil {
		return "", fmt.Errorf("state: read log for %s: %w", taskID, err)
	}
	return deriveState(commits), nil
}

// deriveState inspects the newest commit (commits is newest-first) and
// classifies it per spec §4.3.
func deriveState(commits []protocol.Commit) TaskState {
	if len(commits) == 0 {
		return Pending
	}
	newest := commits[0]
	step := newest.Trailers[protocol.KeyStep]

	if step == protocol.StepComplete {
		if newest.Trailers[protocol.KeyResult] == protocol.ResultPass {
			return Complete
		}
		return Failed
	}
	switch step {
	case protocol.StepImplement:
		return Implementing
	case protocol.StepTest:
		return Testing
	case protocol.StepReview:
		return Reviewing
	default:
		return Pending
	}
}

// IsComplete reports whether taskID has reached the complete (pass) state
// on branch.
func (r *Reader) IsComplete(ctx context.Context, branch, taskID string) (bool, error) {
	s, err := r.For(ctx, branch, taskID)
	if err != nil {
		return false, err
	}
	return s == Complete, nil
}

// CompletedTasks iterates every leaf in t and returns the set whose state
// is Complete.
func (r *Reader) CompletedTasks(ctx context.Context, t *tree.Tree, branch string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, leaf := range t.Leaves() {
		ok, err := r.IsComplete(ctx, branch, leaf.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out[leaf.ID] = true
		}
	}
	return out, nil
}

// LastAttemptNumber returns the maximum Arborist-Retry value across every
// commit matching taskID on branch, or -1 if there are none.
func (r *Reader) LastAttemptNumber(ctx context.Context, branch, taskID string) (int, error) {
	commits, err := protocol.LogForTask(ctx, r.Dir, branch, taskID)
	if err != nil {
		return 0, fmt.Errorf("state: read log for %s: %w", taskID, err)
	}
	max := -1
	for _, c := range commits {
		n, ok := parseRetry(c.Trailers[protocol.KeyRetry])
		if ok && n > max {
			max = n
		}
	}
	return max, nil
}

func parseRetry(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}
