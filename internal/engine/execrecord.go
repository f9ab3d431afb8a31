package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ExecutionRecord is the per-run log, kept in sync across three forms: a
// JSONL file, a plaintext file, and a remote page (§4.9). It is created at
// run start with status Running and finalized once, at the very end.
type ExecutionRecord struct {
	RunID       string
	ScriptName  string
	Version     string
	Environment string
	ScriptID    string
	Timezone    string
	UserID      string
	StartTime   time.Time
	EndTime     time.Time
	Status      ExecutionStatus

	logDir string

	mu       sync.Mutex
	steps    []string
	errors   []ExecutionError
	warnings []string
	summary  map[string]any
	metrics  map[string]any

	jsonlPath string
	logPath   string
	jsonl     *os.File
	plain     *os.File

	remotePageID string
	remote       ExecutionPageClient
	logger       *slog.Logger
}

// ExecutionStatus is the closed set of states an ExecutionRecord can carry.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionCompleted ExecutionStatus = "Completed"
	ExecutionFailed    ExecutionStatus = "Failed"
)

// ExecutionError is one entry in the record's errors[] (§7: "every caught
// error contributes exactly one entry").
type ExecutionError struct {
	Database  string `json:"database"`
	Component string `json:"component"`
	Row       string `json:"row,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// ExecutionPageClient is the narrow capability for maintaining the remote
// execution page (§4.9). Kept separate from RemoteClient because it
// addresses a single well-known database with a fixed field set, not the
// generic property-typed row model the rest of the engine works with.
type ExecutionPageClient interface {
	CreateExecutionPage(rec *ExecutionRecord) (pageID string, err error)
	UpdateExecutionPage(pageID string, rec *ExecutionRecord) error
}

// execPathParts renders the §4.9 on-disk naming scheme:
// "<scriptName> — v<ver> — <env> — <timestamp> — <status> [<scriptId>] (<runId>).<ext>"
func execPathParts(rec *ExecutionRecord, status ExecutionStatus) (dir, base string) {
	dir = filepath.Join(rec.logDir, rec.StartTime.Format("2006"), rec.StartTime.Format("01"))

	base = fmt.Sprintf("%s — v%s — %s — %s — %s [%s] (%s)",
		rec.ScriptName, rec.Version, rec.Environment,
		rec.StartTime.UTC().Format("20060102T150405Z"), status, rec.ScriptID, rec.RunID)

	return dir, base
}

// StartExecutionRecord creates the on-disk files in Running state and
// attempts to create the remote page. A failed remote page create is
// logged but not fatal (§4.9 failure semantics): the run proceeds with
// on-disk logging only.
func StartExecutionRecord(logDir string, rec *ExecutionRecord, remote ExecutionPageClient, logger *slog.Logger) (*ExecutionRecord, error) {
	rec.logDir = logDir
	rec.Status = ExecutionRunning
	rec.summary = make(map[string]any)
	rec.metrics = make(map[string]any)
	rec.remote = remote
	rec.logger = logger

	dir, base := execPathParts(rec, ExecutionRunning)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating execution log directory: %v", ErrLocalIO, err)
	}

	rec.jsonlPath = filepath.Join(dir, base+".jsonl")
	rec.logPath = filepath.Join(dir, base+".log")

	jsonlFile, err := os.Create(rec.jsonlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating jsonl log: %v", ErrLocalIO, err)
	}

	plainFile, err := os.Create(rec.logPath)
	if err != nil {
		jsonlFile.Close()
		return nil, fmt.Errorf("%w: creating plaintext log: %v", ErrLocalIO, err)
	}

	rec.jsonl = jsonlFile
	rec.plain = plainFile

	if remote != nil {
		pageID, err := remote.CreateExecutionPage(rec)
		if err != nil {
			logger.Warn("creating remote execution page failed, continuing with on-disk logs only",
				slog.String("run_id", rec.RunID), slog.String("error", err.Error()))
		} else {
			rec.remotePageID = pageID
		}
	}

	return rec, nil
}

// Log appends one structured entry to the jsonl file and a matching line
// to the plaintext file (§4.9: "minimum required fields per entry: runId,
// timestamp, level, component, message, context").
func (r *ExecutionRecord) Log(level, component, message string, context map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, fmt.Sprintf("%s: %s", component, message))

	entry := map[string]any{
		"runId":     r.RunID,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"component": component,
		"message":   message,
		"context":   context,
	}

	if r.jsonl != nil {
		if data, err := json.Marshal(entry); err == nil {
			r.jsonl.Write(data)
			r.jsonl.Write([]byte("\n"))
		}
	}

	if r.plain != nil {
		fmt.Fprintf(r.plain, "%s [%s] %s: %s\n", entry["timestamp"], level, component, message)
	}
}

// AddError records one ExecutionRecord-level error entry.
func (r *ExecutionRecord) AddError(database, component, row string, kind error, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, ExecutionError{
		Database: database, Component: component, Row: row,
		Kind: kind.Error(), Message: message,
	})
}

// AddWarning records a non-fatal, run-level warning (e.g. an
// invariant-demotion notice, §8 scenario expectations).
func (r *ExecutionRecord) AddWarning(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.warnings = append(r.warnings, message)
}

// SetSummary and SetMetric let callers attach free-form final-entry fields
// (§4.9: "summary, performanceMetrics").
func (r *ExecutionRecord) SetSummary(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary[key] = value
}

func (r *ExecutionRecord) SetMetric(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[key] = value
}

// Finalize writes the final jsonl entry, renames both on-disk files from
// Running to their terminal status, flushes the remote page's Final
// Status last, and closes the files. Safe to call from a deferred
// recover() handler: status defaults to Failed if not already set.
func (r *ExecutionRecord) Finalize(status ExecutionStatus) error {
	if status == "" {
		status = ExecutionFailed
	}

	r.mu.Lock()
	r.EndTime = time.Now().UTC()
	r.Status = status

	final := map[string]any{
		"runId":           r.RunID,
		"scriptName":      r.ScriptName,
		"startTime":       r.StartTime.UTC().Format(time.RFC3339),
		"endTime":         r.EndTime.Format(time.RFC3339),
		"status":          r.Status,
		"durationSeconds": r.EndTime.Sub(r.StartTime).Seconds(),
		"environment":     r.Environment,
		"scriptId":        r.ScriptID,
		"steps":           append([]string{}, r.steps...),
		"errors":          append([]ExecutionError{}, r.errors...),
		"warnings":        append([]string{}, r.warnings...),
		"summary":         copyMap(r.summary),
		"performanceMetrics": copyMap(r.metrics),
	}
	r.mu.Unlock()

	if r.jsonl != nil {
		if data, err := json.Marshal(final); err == nil {
			r.jsonl.Write(data)
			r.jsonl.Write([]byte("\n"))
		}
	}

	if r.plain != nil {
		fmt.Fprintf(r.plain, "--- final status: %s (duration %s) ---\n", r.Status, r.EndTime.Sub(r.StartTime))
		for _, k := range sortedKeys(r.summary) {
			fmt.Fprintf(r.plain, "summary.%s = %v\n", k, r.summary[k])
		}
	}

	var renameErr error

	if r.jsonl != nil || r.plain != nil {
		renameErr = r.renameFiles(status)
	}

	if r.jsonl != nil {
		r.jsonl.Close()
	}

	if r.plain != nil {
		r.plain.Close()
	}

	if r.remote != nil && r.remotePageID != "" {
		if err := r.remote.UpdateExecutionPage(r.remotePageID, r); err != nil && r.logger != nil {
			r.logger.Warn("finalizing remote execution page failed; on-disk logs are still authoritative",
				slog.String("run_id", r.RunID), slog.String("error", err.Error()))
		}
	}

	return renameErr
}

// renameFiles implements "files are created with status=Running and
// renamed to Completed or Failed at finalization; both files are always
// renamed together" (§4.9).
func (r *ExecutionRecord) renameFiles(status ExecutionStatus) error {
	dir, newBase := execPathParts(r, status)

	newJSONL := filepath.Join(dir, newBase+".jsonl")
	newLog := filepath.Join(dir, newBase+".log")

	if err := os.Rename(r.jsonlPath, newJSONL); err != nil {
		return fmt.Errorf("%w: renaming jsonl log to final status: %v", ErrLocalIO, err)
	}

	if err := os.Rename(r.logPath, newLog); err != nil {
		return fmt.Errorf("%w: renaming plaintext log to final status: %v", ErrLocalIO, err)
	}

	r.jsonlPath, r.logPath = newJSONL, newLog

	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
