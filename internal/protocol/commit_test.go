package protocol

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// initRepo creates a temp git repo with an initial empty commit, mirroring
// the teacher pack's setupBeadsRepo helper.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "arborist@example.com"},
		{"config", "user.name", "Arborist Test"},
		{"config", "commit.gpgsign", "false"},
		{"commit", "--allow-empty", "-m", "initial"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	return dir
}

func TestWrite_CreatesParseableProtocolCommit(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	err := Write(ctx, dir, WriteRequest{
		Branch:   "main",
		TaskID:   "T001",
		Status:   StatusImplementPass,
		FreeText: "implement hello world",
		Body:     "runner summary: wrote one file",
		Trailers: Trailers{
			KeyStep:   StepImplement,
			KeyResult: ResultPass,
			KeyRetry:  "0",
		},
	})
	require.NoError(t, err)

	commits, err := LogForTask(ctx, dir, "main", "T001")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, StatusImplementPass, commits[0].Subject.Status)
	require.Equal(t, StepImplement, commits[0].Trailers[KeyStep])
	require.Equal(t, ResultPass, commits[0].Trailers[KeyResult])
	require.Equal(t, "0", commits[0].Trailers[KeyRetry])
	require.Contains(t, commits[0].Body, "runner summary")
}

func TestWrite_EmptyCommitWhenNothingStaged(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	err := Write(ctx, dir, WriteRequest{
		Branch:   "main",
		TaskID:   "T001",
		Status:   StatusTestPass,
		FreeText: "test pass (no test commands)",
		Trailers: Trailers{KeyStep: StepTest, KeyTest: ResultPass, KeyRetry: "0"},
	})
	require.NoError(t, err)

	commits, err := LogForTask(ctx, dir, "main", "T001")
	require.NoError(t, err)
	require.Len(t, commits, 1)
}

func TestLogForTask_BranchScoped(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	require.NoError(t, Write(ctx, dir, WriteRequest{
		Branch: "main", TaskID: "T001", Status: StatusComplete,
		FreeText: "complete", Trailers: Trailers{KeyStep: StepComplete, KeyResult: ResultPass},
	}))

	// Same task id, different branch name embedded in the subject: must be
	// invisible to LogForTask on a different branch string per spec's
	// branch-scoping invariant, even though we never actually switch HEAD.
	commits, err := LogForTask(ctx, dir, "other-branch", "T001")
	require.NoError(t, err)
	require.Empty(t, commits)

	commits, err = LogForTask(ctx, dir, "main", "T001")
	require.NoError(t, err)
	require.Len(t, commits, 1)
}

func TestLogForTask_NewestFirst(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	require.NoError(t, Write(ctx, dir, WriteRequest{
		Branch: "main", TaskID: "T001", Status: StatusImplementFail,
		FreeText: "attempt 0 failed", Trailers: Trailers{KeyStep: StepImplement, KeyResult: ResultFail, KeyRetry: "0"},
	}))
	require.NoError(t, Write(ctx, dir, WriteRequest{
		Branch: "main", TaskID: "T001", Status: StatusImplementPass,
		FreeText: "attempt 1 passed", Trailers: Trailers{KeyStep: StepImplement, KeyResult: ResultPass, KeyRetry: "1"},
	}))

	commits, err := LogForTask(ctx, dir, "main", "T001")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	require.Equal(t, "1", commits[0].Trailers[KeyRetry])
	require.Equal(t, "0", commits[1].Trailers[KeyRetry])
}

func TestWrite_StagesFileChanges(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))

	require.NoError(t, Write(ctx, dir, WriteRequest{
		Branch: "main", TaskID: "T001", Status: StatusImplementPass,
		FreeText: "implement", Trailers: Trailers{KeyStep: StepImplement, KeyResult: ResultPass, KeyRetry: "0"},
	}))

	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	require.Empty(t, string(out), "working tree should be clean after commit")
}
