package protocol

import (
	"context"
	"fmt"

	"github.com/pennyworth-tech/arborist/internal/gitops"
)

// WriteRequest describes one protocol commit to be recorded.
type WriteRequest struct {
	Branch   string
	TaskID   string
	Status   Status
	FreeText string   // subject free text; deterministic, no timestamps/paths
	Body     string   // free-text body (e.g. runner summary, failure excerpt)
	Trailers Trailers
}

// Write composes and creates the commit in dir, staging any working-tree
// changes first. If nothing is staged, it creates an empty commit so
// bookkeeping-only steps (test-only, review-only) still land in the log.
func Write(ctx context.Context, dir string, req WriteRequest) error {
	if err := gitops.AddAll(ctx, dir); err != nil {
		return fmt.Errorf("protocol: stage changes: %w", err)
	}
	staged, err := gitops.HasStagedChanges(ctx, dir)
	if err != nil {
		return fmt.Errorf("protocol: check staged changes: %w", err)
	}

	subject := ComposeSubject(req.Branch, req.TaskID, req.Status, req.FreeText)
	message := subject
	if req.Body != "" {
		message += "\n\n" + req.Body
	}
	if len(req.Trailers) > 0 {
		message += "\n\n" + req.Trailers.Render()
	}

	if err := gitops.Commit(ctx, dir, message, !staged); err != nil {
		return fmt.Errorf("protocol: commit: %w", err)
	}
	return nil
}
