package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/pennyworth-tech/arborist/internal/gitops"
)

// Commit is one parsed protocol commit: the decomposed subject, trailers,
// free-text body, and commit metadata.
type Commit struct {
	Hash     string
	Subject  ParsedSubject
	Body     string
	Trailers Trailers
	Date     time.Time
}

// LogForTask returns every protocol commit for taskID on branch, newest
// first, by grepping HEAD for the literal subject prefix
// "task({branch}@{task_id}@" — a fixed-string match, so branch names with
// regex metacharacters are handled safely.
func LogForTask(ctx context.Context, dir, branch, taskID string) ([]Commit, error) {
	prefix := TaskPrefix(branch, taskID)
	raw, err := gitops.LogFixedStringsGrep(ctx, dir, prefix)
	if err != nil {
		return nil, fmt.Errorf("protocol: log for task %s: %w", taskID, err)
	}
	return parseCommits(raw, branch, taskID), nil
}

// LogForBranch returns every protocol commit on branch, newest first.
func LogForBranch(ctx context.Context, dir, branch string) ([]Commit, error) {
	prefix := SubjectPrefix(branch)
	raw, err := gitops.LogFixedStringsGrep(ctx, dir, prefix)
	if err != nil {
		return nil, fmt.Errorf("protocol: log for branch %s: %w", branch, err)
	}
	return parseCommits(raw, branch, ""), nil
}

// parseCommits decomposes raw commits matched by a fixed-string grep and
// re-checks the parsed subject's own branch (and, when taskID is
// non-empty, task id) against what was requested. The grep only proves
// the literal prefix appears somewhere in the commit message; a commit
// body can carry test output or review text that happens to contain
// another task's "task(branch@id@…" text, so the grep match alone is not
// proof the *subject* belongs to this branch/task.
func parseCommits(raw []gitops.RawCommit, branch, taskID string) []Commit {
	out := make([]Commit, 0, len(raw))
	for _, r := range raw {
		subjectLine, body := splitSubjectBody(r.Body)
		parsed, ok := ParseSubject(subjectLine)
		if !ok {
			// Not a protocol commit despite matching the grep (the fixed
			// string can, in principle, appear inside a body); skip it.
			continue
		}
		if parsed.Branch != branch {
			continue
		}
		if taskID != "" && parsed.TaskID != taskID {
			continue
		}
		date, _ := time.Parse(time.RFC3339, r.Date)
		out = append(out, Commit{
			Hash:     r.Hash,
			Subject:  parsed,
			Body:     body,
			Trailers: ParseTrailers(r.Body),
			Date:     date,
		})
	}
	return out
}

func splitSubjectBody(full string) (subject, rest string) {
	for i := 0; i < len(full); i++ {
		if full[i] == '\n' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
