// Package artifacts writes the run's observability sidecars: one JSON
// report per completed task and a log file per step attempt. None of
// this is consulted to decide engine state — git remains the sole
// source of truth, and a missing or deleted artifact root must never
// change what garden/gardener do.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// StepRecord captures one step's outcome inside a task's report.
type StepRecord struct {
	Step    string `json:"step"`
	Attempt int    `json:"attempt"`
	Result  string `json:"result"`
	LogPath string `json:"log_path,omitempty"`
}

// Report is the per-task sidecar written to reports/<task_id>.json.
type Report struct {
	TaskID  string       `json:"task_id"`
	Result  string       `json:"result"`
	Retries int          `json:"retries"`
	Steps   []StepRecord `json:"steps"`
}

// Store manages the artifact directory layout under root:
// reports/<task_id>.json and logs/<task_id>-<step>-<attempt>-<uuid8>.log.
type Store struct {
	root string
}

// NewStore ensures root/reports and root/logs exist and returns a Store
// rooted there.
func NewStore(root string) (*Store, error) {
	for _, sub := range []string{"reports", "logs"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("artifacts: create %s dir: %w", sub, err)
		}
	}
	return &Store{root: root}, nil
}

// WriteLog writes content to a unique log file for taskID/step/attempt
// and returns its path relative to the store root. A short uuid
// correlation suffix keeps concurrent writers for the same
// task/step/attempt from colliding on a half-written file.
func (s *Store) WriteLog(taskID, step string, attempt int, content string) (string, error) {
	if s == nil {
		return "", nil
	}
	suffix := uuid.New().String()[:8]
	name := fmt.Sprintf("%s-%s-%d-%s.log", taskID, step, attempt, suffix)
	rel := filepath.Join("logs", name)
	full := filepath.Join(s.root, rel)
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("artifacts: write log %s: %w", rel, err)
	}
	return rel, nil
}

// WriteReport writes report to reports/<task_id>.json, overwriting any
// prior report for the same task (only the latest report is kept; full
// step history always remains recoverable from git).
func (s *Store) WriteReport(report Report) (string, error) {
	if s == nil {
		return "", nil
	}
	rel := filepath.Join("reports", report.TaskID+".json")
	full := filepath.Join(s.root, rel)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("artifacts: marshal report for %s: %w", report.TaskID, err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("artifacts: write report %s: %w", rel, err)
	}
	return rel, nil
}

// ReadReport loads a previously written report for taskID.
func (s *Store) ReadReport(taskID string) (Report, error) {
	full := filepath.Join(s.root, "reports", taskID+".json")
	data, err := os.ReadFile(full)
	if err != nil {
		return Report{}, fmt.Errorf("artifacts: read report %s: %w", taskID, err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("artifacts: parse report %s: %w", taskID, err)
	}
	return report, nil
}

// ListReports returns every report JSON file's task id found under root,
// used to rebuild the sqlite index from scratch.
func (s *Store) ListReports() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "reports"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifacts: list reports: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" {
			continue
		}
		ids = append(ids, e.Name()[:len(e.Name())-len(ext)])
	}
	return ids, nil
}
