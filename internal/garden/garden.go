// Package garden implements the per-task garden engine: the
// IMPLEMENT -> TEST -> REVIEW -> COMPLETE state machine that drives one
// leaf task from pending (or a resumed intermediate state) to a terminal
// state on the current branch.
package garden

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pennyworth-tech/arborist/internal/artifacts"
	"github.com/pennyworth-tech/arborist/internal/clock"
	"github.com/pennyworth-tech/arborist/internal/gitops"
	"github.com/pennyworth-tech/arborist/internal/protocol"
	"github.com/pennyworth-tech/arborist/internal/runner"
	"github.com/pennyworth-tech/arborist/internal/testexec"
	"github.com/pennyworth-tech/arborist/internal/tree"
)

// Policy carries the per-run tunables the engine needs beyond the tree
// itself: retry budget, step timeouts, and the working directory the
// runner and test commands execute in.
type Policy struct {
	MaxRetries       int
	ImplementTimeout time.Duration
	TestTimeout      time.Duration
	ReviewTimeout    time.Duration
	WorkDir          string

	// Artifacts is optional. When set, test/review output is mirrored to
	// log files and a report is written on completion; when nil, the
	// engine runs exactly the same but skips all artifact I/O. Trailers
	// pointing at artifact paths are only emitted when a write actually
	// happened, and a failed artifact write never fails the garden run.
	Artifacts *artifacts.Store
}

// Outcome is the terminal result of one garden() invocation for one task.
// It is a plain value, never an error — only infrastructure failures
// (git, spawn) are returned as errors.
type Outcome struct {
	TaskID        string
	Success       bool
	Attempts      int
	FailureCommit string
}

type step int

const (
	stepImplement step = iota
	stepTest
	stepReview
	stepComplete
)

// Garden runs task from its current git-derived state to a terminal
// outcome on branch, in dir. implementRunner and reviewRunner may be the
// same Runner value.
func Garden(
	ctx context.Context,
	dir, branch string,
	task *tree.TaskNode,
	implementRunner, reviewRunner runner.Runner,
	policy Policy,
	clk clock.Clock,
	log *slog.Logger,
) (Outcome, error) {
	if log == nil {
		log = slog.Default()
	}

	commits, err := protocol.LogForTask(ctx, dir, branch, task.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("garden: read log for %s: %w", task.ID, err)
	}

	attempt, cur := resume(commits)
	if cur == stepComplete {
		// Newest commit already recorded an approved review; finish it.
		return finish(ctx, dir, branch, task, attempt, true, policy.Artifacts, log)
	}

	for {
		if attempt > policy.MaxRetries {
			log.Info("garden: retries exhausted", "task_id", task.ID, "attempts", attempt)
			return finish(ctx, dir, branch, task, attempt, false, policy.Artifacts, log)
		}

		switch cur {
		case stepImplement:
			ok, err := runImplement(ctx, dir, branch, task, attempt, implementRunner, policy, log)
			if err != nil {
				return Outcome{}, err
			}
			if !ok {
				attempt++
				cur = stepImplement
				continue
			}
			cur = stepTest

		case stepTest:
			ok, err := runTest(ctx, dir, branch, task, attempt, policy, log)
			if err != nil {
				return Outcome{}, err
			}
			if !ok {
				attempt++
				cur = stepImplement
				continue
			}
			cur = stepReview

		case stepReview:
			ok, err := runReview(ctx, dir, branch, task, attempt, reviewRunner, policy, log)
			if err != nil {
				return Outcome{}, err
			}
			if !ok {
				attempt++
				cur = stepImplement
				continue
			}
			cur = stepComplete

		case stepComplete:
			return finish(ctx, dir, branch, task, attempt, true, policy.Artifacts, log)
		}
	}
}

// resume inspects the newest commit (commits is newest-first) and decides
// which step to (re-)enter and at what attempt number, per spec §4.5's
// "resumption in mid-attempt" edge case.
func resume(commits []protocol.Commit) (attempt int, cur step) {
	if len(commits) == 0 {
		return 0, stepImplement
	}
	newest := commits[0]
	n, _ := strconv.Atoi(newest.Trailers[protocol.KeyRetry])

	switch newest.Subject.Status {
	case protocol.StatusImplementPass:
		return n, stepTest
	case protocol.StatusImplementFail:
		return n + 1, stepImplement
	case protocol.StatusTestPass:
		return n, stepReview
	case protocol.StatusTestFail:
		return n + 1, stepImplement
	case protocol.StatusReviewApproved:
		return n, stepComplete
	case protocol.StatusReviewRejected:
		return n + 1, stepImplement
	default:
		return 0, stepImplement
	}
}

func runImplement(ctx context.Context, dir, branch string, task *tree.TaskNode, attempt int, r runner.Runner, policy Policy, log *slog.Logger) (bool, error) {
	previous, err := attemptCommits(ctx, dir, branch, task.ID, attempt-1)
	if err != nil {
		return false, err
	}
	prompt := buildImplementPrompt(task, attempt, previous)

	res, err := r.Run(ctx, prompt, policy.WorkDir, policy.ImplementTimeout)
	if err != nil {
		return false, fmt.Errorf("garden: implement runner for %s: %w", task.ID, err)
	}

	status := protocol.StatusImplementPass
	result := protocol.ResultPass
	body := summarize(res.Output)
	if !res.Success {
		status = protocol.StatusImplementFail
		result = protocol.ResultFail
		if res.TimedOut {
			body = "implement runner timed out\n\n" + body
		} else if res.Error != "" {
			body = "implement runner error: " + res.Error + "\n\n" + body
		}
	}

	log.Info("garden: implement", "task_id", task.ID, "attempt", attempt, "result", result)
	err = protocol.Write(ctx, dir, protocol.WriteRequest{
		Branch: branch, TaskID: task.ID, Status: status,
		FreeText: fmt.Sprintf("implement attempt %d", attempt),
		Body:     body,
		Trailers: protocol.Trailers{
			protocol.KeyStep:   protocol.StepImplement,
			protocol.KeyResult: result,
			protocol.KeyRetry:  strconv.Itoa(attempt),
		},
	})
	if err != nil {
		return false, fmt.Errorf("garden: record implement commit for %s: %w", task.ID, err)
	}
	return res.Success, nil
}

func runTest(ctx context.Context, dir, branch string, task *tree.TaskNode, attempt int, policy Policy, log *slog.Logger) (bool, error) {
	res, err := testexec.Run(ctx, policy.WorkDir, task.TestCommands, policy.TestTimeout)
	if err != nil {
		return false, fmt.Errorf("garden: test executor for %s: %w", task.ID, err)
	}

	status := protocol.StatusTestPass
	result := protocol.ResultPass
	if !res.Pass {
		status = protocol.StatusTestFail
		result = protocol.ResultFail
	}

	trailers := protocol.Trailers{
		protocol.KeyStep:  protocol.StepTest,
		protocol.KeyTest:  result,
		protocol.KeyRetry: strconv.Itoa(attempt),
	}
	if res.FirstFailingType != "" {
		trailers[protocol.KeyTestType] = string(res.FirstFailingType)
	}
	if res.Passed != nil {
		trailers[protocol.KeyTestPassed] = strconv.Itoa(*res.Passed)
	}
	if res.Failed != nil {
		trailers[protocol.KeyTestFailed] = strconv.Itoa(*res.Failed)
	}
	if res.Skipped != nil {
		trailers[protocol.KeyTestSkip] = strconv.Itoa(*res.Skipped)
	}
	trailers[protocol.KeyTestTime] = res.TotalRuntime.Round(time.Millisecond).String()

	if logPath := writeStepLog(policy.Artifacts, task.ID, protocol.StepTest, attempt, testOutputBody(res)); logPath != "" {
		trailers[protocol.KeyTestLog] = logPath
	}

	log.Info("garden: test", "task_id", task.ID, "attempt", attempt, "result", result)
	err = protocol.Write(ctx, dir, protocol.WriteRequest{
		Branch: branch, TaskID: task.ID, Status: status,
		FreeText: fmt.Sprintf("test attempt %d", attempt),
		Body:     testOutputBody(res),
		Trailers: trailers,
	})
	if err != nil {
		return false, fmt.Errorf("garden: record test commit for %s: %w", task.ID, err)
	}
	return res.Pass, nil
}

func runReview(ctx context.Context, dir, branch string, task *tree.TaskNode, attempt int, r runner.Runner, policy Policy, log *slog.Logger) (bool, error) {
	implementHash, err := attemptImplementHash(ctx, dir, branch, task.ID, attempt)
	if err != nil {
		return false, err
	}
	diff := ""
	if implementHash != "" {
		diff, err = gitops.Diff(ctx, dir, implementHash+"^", "HEAD")
		if err != nil {
			return false, fmt.Errorf("garden: diff for review of %s: %w", task.ID, err)
		}
	}

	prompt := buildReviewPrompt(task, diff)
	res, err := r.Run(ctx, prompt, policy.WorkDir, policy.ReviewTimeout)
	if err != nil {
		return false, fmt.Errorf("garden: review runner for %s: %w", task.ID, err)
	}

	var verdict Verdict
	status := protocol.StatusReviewRejected
	reviewResult := protocol.ReviewRejected
	body := summarize(res.Output)
	if !res.Success {
		if res.TimedOut {
			body = "review runner timed out\n\n" + body
		} else if res.Error != "" {
			body = "review runner error: " + res.Error + "\n\n" + body
		}
	} else {
		verdict = parseVerdict(res.Output)
		if verdict.Approved {
			status = protocol.StatusReviewApproved
			reviewResult = protocol.ReviewApproved
		} else {
			body = verdict.Reason + "\n\n" + body
		}
	}

	reviewTrailers := protocol.Trailers{
		protocol.KeyStep:   protocol.StepReview,
		protocol.KeyReview: reviewResult,
		protocol.KeyRetry:  strconv.Itoa(attempt),
	}
	if logPath := writeStepLog(policy.Artifacts, task.ID, protocol.StepReview, attempt, res.Output); logPath != "" {
		reviewTrailers[protocol.KeyReviewLog] = logPath
	}

	log.Info("garden: review", "task_id", task.ID, "attempt", attempt, "result", reviewResult)
	err = protocol.Write(ctx, dir, protocol.WriteRequest{
		Branch: branch, TaskID: task.ID, Status: status,
		FreeText: fmt.Sprintf("review attempt %d", attempt),
		Body:     body,
		Trailers: reviewTrailers,
	})
	if err != nil {
		return false, fmt.Errorf("garden: record review commit for %s: %w", task.ID, err)
	}
	return status == protocol.StatusReviewApproved, nil
}

func finish(ctx context.Context, dir, branch string, task *tree.TaskNode, attempts int, success bool, store *artifacts.Store, log *slog.Logger) (Outcome, error) {
	result := protocol.ResultPass
	freeText := fmt.Sprintf("%s complete", task.ID)
	if !success {
		result = protocol.ResultFail
		freeText = fmt.Sprintf("%s failed after %d attempts", task.ID, attempts)
	}

	completeTrailers := protocol.Trailers{
		protocol.KeyStep:   protocol.StepComplete,
		protocol.KeyResult: result,
	}
	if reportPath := writeReport(ctx, store, dir, branch, task.ID, result, attempts, log); reportPath != "" {
		completeTrailers[protocol.KeyReport] = reportPath
	}

	log.Info("garden: complete", "task_id", task.ID, "success", success, "attempts", attempts)
	err := protocol.Write(ctx, dir, protocol.WriteRequest{
		Branch: branch, TaskID: task.ID, Status: protocol.StatusComplete,
		FreeText: freeText,
		Trailers: completeTrailers,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("garden: record complete commit for %s: %w", task.ID, err)
	}

	hash, hashErr := gitops.RevParseHEAD(ctx, dir)
	if hashErr != nil {
		hash = ""
	}
	return Outcome{TaskID: task.ID, Success: success, Attempts: attempts, FailureCommit: failureCommit(success, hash)}, nil
}

// writeStepLog mirrors content to store as a log artifact for
// taskID/step/attempt, returning its path or "" if store is nil or the
// write failed. Artifact I/O is best-effort and never fails the garden run.
func writeStepLog(store *artifacts.Store, taskID, step string, attempt int, content string) string {
	if store == nil {
		return ""
	}
	path, err := store.WriteLog(taskID, step, attempt, content)
	if err != nil {
		return ""
	}
	return path
}

// writeReport reconstructs the task's full step history from its
// protocol log and writes a Report artifact, returning its path or ""
// if store is nil or the write failed.
func writeReport(ctx context.Context, store *artifacts.Store, dir, branch, taskID, result string, attempts int, log *slog.Logger) string {
	if store == nil {
		return ""
	}
	commits, err := protocol.LogForTask(ctx, dir, branch, taskID)
	if err != nil {
		log.Warn("garden: could not read log to build report", "task_id", taskID, "error", err)
		return ""
	}

	steps := make([]artifacts.StepRecord, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		n, _ := strconv.Atoi(c.Trailers[protocol.KeyRetry])
		steps = append(steps, artifacts.StepRecord{
			Step:    c.Trailers[protocol.KeyStep],
			Attempt: n,
			Result:  string(c.Subject.Status),
		})
	}

	path, err := store.WriteReport(artifacts.Report{
		TaskID:  taskID,
		Result:  result,
		Retries: attempts,
		Steps:   steps,
	})
	if err != nil {
		log.Warn("garden: could not write report artifact", "task_id", taskID, "error", err)
		return ""
	}
	return path
}

func failureCommit(success bool, hash string) string {
	if success {
		return ""
	}
	return hash
}

// attemptCommits returns the commits tagged with Arborist-Retry == attempt
// for task, newest-first, used to reconstruct the feedback block for the
// next IMPLEMENT call.
func attemptCommits(ctx context.Context, dir, branch, taskID string, attempt int) ([]protocol.Commit, error) {
	if attempt < 0 {
		return nil, nil
	}
	commits, err := protocol.LogForTask(ctx, dir, branch, taskID)
	if err != nil {
		return nil, fmt.Errorf("garden: read log for %s: %w", taskID, err)
	}
	want := strconv.Itoa(attempt)
	var out []protocol.Commit
	for _, c := range commits {
		if c.Trailers[protocol.KeyRetry] == want {
			out = append(out, c)
		}
	}
	return out, nil
}

// attemptImplementHash finds the hash of the implement-pass commit for the
// given attempt; its parent (hash^) is the pre-attempt base ref for the
// review diff.
func attemptImplementHash(ctx context.Context, dir, branch, taskID string, attempt int) (string, error) {
	commits, err := attemptCommits(ctx, dir, branch, taskID, attempt)
	if err != nil {
		return "", err
	}
	for _, c := range commits {
		if c.Subject.Status == protocol.StatusImplementPass {
			return c.Hash, nil
		}
	}
	return "", nil
}

func summarize(output string) string {
	return tail(output, 4000)
}

func testOutputBody(res *testexec.Result) string {
	var body string
	for _, c := range res.Commands {
		if !c.Passed {
			body += fmt.Sprintf("command %q failed (exit %d, timed_out=%v):\n%s\n\n", c.Command, c.ExitCode, c.TimedOut, tail(c.Output, 4000))
		}
	}
	if body == "" {
		body = "all test commands passed"
	}
	return body
}
