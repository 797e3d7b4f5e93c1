package state

import (
	"context"
	"os/exec"
	"testing"

	"github.com/pennyworth-tech/arborist/internal/protocol"
	"github.com/stretchr/testify/require"
)

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

func write(t *testing.T, dir, branch, taskID string, status protocol.Status, trailers protocol.Trailers) {
	t.Helper()
	require.NoError(t, protocol.Write(context.Background(), dir, protocol.WriteRequest{
		Branch: branch, TaskID: taskID, Status: status, FreeText: string(status), Trailers: trailers,
	}))
}

func TestState_PendingWhenNoCommits(t *testing.T) {
	dir := initRepo(t)
	r := NewReader(dir)
	s, err := r.For(context.Background(), "main", "T001")
	require.NoError(t, err)
	require.Equal(t, Pending, s)
}

func TestState_TransitionsThroughSteps(t *testing.T) {
	dir := initRepo(t)
	r := NewReader(dir)
	ctx := context.Background()

	write(t, dir, "main", "T001", protocol.StatusImplementPass, protocol.Trailers{protocol.KeyStep: protocol.StepImplement, protocol.KeyResult: protocol.ResultPass, protocol.KeyRetry: "0"})
	s, err := r.For(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, Implementing, s)

	write(t, dir, "main", "T001", protocol.StatusTestPass, protocol.Trailers{protocol.KeyStep: protocol.StepTest, protocol.KeyTest: protocol.ResultPass, protocol.KeyRetry: "0"})
	s, err = r.For(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, Testing, s)

	write(t, dir, "main", "T001", protocol.StatusReviewApproved, protocol.Trailers{protocol.KeyStep: protocol.StepReview, protocol.KeyReview: protocol.ReviewApproved, protocol.KeyRetry: "0"})
	s, err = r.For(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, Reviewing, s)

	write(t, dir, "main", "T001", protocol.StatusComplete, protocol.Trailers{protocol.KeyStep: protocol.StepComplete, protocol.KeyResult: protocol.ResultPass})
	s, err = r.For(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, Complete, s)

	ok, err := r.IsComplete(ctx, "main", "T001")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestState_FailedTerminal(t *testing.T) {
	dir := initRepo(t)
	r := NewReader(dir)
	ctx := context.Background()

	write(t, dir, "main", "T001", protocol.StatusComplete, protocol.Trailers{protocol.KeyStep: protocol.StepComplete, protocol.KeyResult: protocol.ResultFail})
	s, err := r.For(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, Failed, s)
}

func TestState_LastAttemptNumber(t *testing.T) {
	dir := initRepo(t)
	r := NewReader(dir)
	ctx := context.Background()

	n, err := r.LastAttemptNumber(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, -1, n)

	write(t, dir, "main", "T001", protocol.StatusImplementFail, protocol.Trailers{protocol.KeyStep: protocol.StepImplement, protocol.KeyResult: protocol.ResultFail, protocol.KeyRetry: "0"})
	write(t, dir, "main", "T001", protocol.StatusImplementFail, protocol.Trailers{protocol.KeyStep: protocol.StepImplement, protocol.KeyResult: protocol.ResultFail, protocol.KeyRetry: "1"})

	n, err = r.LastAttemptNumber(ctx, "main", "T001")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
