package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutionPages struct {
	createCalls int
	updateCalls int
	lastStatus  ExecutionStatus
	createErr   error
}

func (f *fakeExecutionPages) CreateExecutionPage(rec *ExecutionRecord) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}

	return "page-1", nil
}

func (f *fakeExecutionPages) UpdateExecutionPage(pageID string, rec *ExecutionRecord) error {
	f.updateCalls++
	f.lastStatus = rec.Status

	return nil
}

func newTestRecord() *ExecutionRecord {
	return &ExecutionRecord{
		RunID:       "run-1",
		ScriptName:  "dbsync",
		Version:     "1",
		Environment: "prod",
		ScriptID:    "s1",
		StartTime:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStartExecutionRecord_CreatesRunningFiles(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	rec, err := StartExecutionRecord(dir, newTestRecord(), nil, logger)
	require.NoError(t, err)

	assert.Equal(t, ExecutionRunning, rec.Status)
	assert.True(t, strings.Contains(rec.jsonlPath, "Running"))
	assert.FileExists(t, rec.jsonlPath)
	assert.FileExists(t, rec.logPath)
}

func TestStartExecutionRecord_RemotePageFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	fake := &fakeExecutionPages{createErr: errors.New("boom")}

	rec, err := StartExecutionRecord(dir, newTestRecord(), fake, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.createCalls)
	assert.Empty(t, rec.remotePageID)
}

func TestFinalize_RenamesBothFilesTogetherAndUpdatesRemote(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	fake := &fakeExecutionPages{}

	rec, err := StartExecutionRecord(dir, newTestRecord(), fake, logger)
	require.NoError(t, err)

	rec.Log("info", "schema", "synced columns", map[string]any{"added": 1})
	rec.AddError("Tasks", "rowupsert", "row-1", ErrLocalIO, "disk full")
	rec.AddWarning("property matched via case_style strategy")
	rec.SetSummary("rowsExported", 10)
	rec.SetMetric("durationMs", 123)

	require.NoError(t, rec.Finalize(ExecutionCompleted))

	assert.Equal(t, 1, fake.updateCalls)
	assert.Equal(t, ExecutionCompleted, fake.lastStatus)

	dirPath, base := execPathParts(rec, ExecutionCompleted)
	assert.FileExists(t, filepath.Join(dirPath, base+".jsonl"))
	assert.FileExists(t, filepath.Join(dirPath, base+".log"))

	runningDir, runningBase := execPathParts(rec, ExecutionRunning)
	_, err = os.Stat(filepath.Join(runningDir, runningBase+".jsonl"))
	assert.True(t, os.IsNotExist(err), "Running-status file must not remain after finalize")
}

func TestFinalize_FailedStatusRenamesToFailed(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	rec, err := StartExecutionRecord(dir, newTestRecord(), nil, logger)
	require.NoError(t, err)

	require.NoError(t, rec.Finalize(ExecutionFailed))

	dirPath, base := execPathParts(rec, ExecutionFailed)
	assert.FileExists(t, filepath.Join(dirPath, base+".log"))
}

func TestExecPathParts_MatchesNamingScheme(t *testing.T) {
	rec := newTestRecord()
	rec.logDir = "/var/log/dbsync"

	dir, base := execPathParts(rec, ExecutionRunning)
	assert.Equal(t, filepath.Join("/var/log/dbsync", "2026", "03"), dir)
	assert.Equal(t, fmt.Sprintf("dbsync — v1 — prod — 20260301T090000Z — Running [s1] (run-1)"), base)
}
