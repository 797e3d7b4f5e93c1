package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pennyworth-tech/arborist/internal/artifacts"
)

// rebuiltIndex opens (creating if absent) the sqlite index under
// artifactRoot and wipes and repopulates it from the current report
// files. Callers must Close it. The index is purely a read-side
// accelerant for `status`/`inspect` — it is never consulted to decide
// engine state, so a missing or stale index never changes what those
// commands report about git.
func rebuiltIndex(ctx context.Context, artifactRoot string) (*artifacts.Index, error) {
	store, err := artifacts.NewStore(artifactRoot)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	idx, err := artifacts.OpenIndex(filepath.Join(artifactRoot, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("open artifact index: %w", err)
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		idx.Close()
		return nil, fmt.Errorf("prepare artifact index: %w", err)
	}
	if err := idx.Rebuild(ctx, store); err != nil {
		idx.Close()
		return nil, fmt.Errorf("rebuild artifact index: %w", err)
	}
	return idx, nil
}
