package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rowkeeper/dbsync/internal/csvtable"
)

// schedulerHandlerName is the trigger this engine pauses/resumes around
// its own run (§4.1 step 2).
const schedulerHandlerName = "dbsync-run"

const defaultLockWait = 8 * time.Second

// Run executes exactly one sync pass: acquire the process-wide lock,
// pause the competing trigger, discover databases, run the per-database
// pipeline for each in rotated/prioritized order within the configured
// time budget, then finalize the execution record, resume the trigger and
// release the lock, in that order (deferred calls, so they also run on a
// recovered panic).
func (e *Engine) Run(ctx context.Context, scheduler Scheduler, execClient ExecutionPageClient) (result RunResult, err error) {
	runStart := e.Clock.Now()

	if scheduler == nil {
		scheduler = NoopScheduler{}
	}

	lockWait := defaultLockWait
	if e.Config.LockWaitDuration != "" {
		if d, parseErr := time.ParseDuration(e.Config.LockWaitDuration); parseErr == nil {
			lockWait = d
		}
	}

	lock, err := NewRunLock(filepath.Join(e.Config.RootPath, e.Config.Environment, ".lock"))
	if err != nil {
		return result, err
	}

	if err := lock.Acquire(ctx, lockWait); err != nil {
		if err == ErrLock {
			e.Logger.Info("another run holds the lock, exiting cleanly")
			return result, nil
		}

		return result, err
	}
	defer lock.Release()

	if err := scheduler.Pause(schedulerHandlerName); err != nil {
		e.Logger.Warn("pausing competing trigger failed, proceeding anyway", slog.String("error", err.Error()))
	}
	defer func() {
		if resumeErr := scheduler.Resume(schedulerHandlerName); resumeErr != nil {
			e.Logger.Warn("resuming competing trigger failed", slog.String("error", resumeErr.Error()))
		}
	}()

	rec := &ExecutionRecord{
		RunID:       uuid.NewString(),
		ScriptName:  e.Config.ScriptName,
		Version:     e.Config.ScriptVersion,
		Environment: e.Config.Environment,
		ScriptID:    e.Config.ScriptID,
		StartTime:   runStart,
	}

	logDir := e.Config.Logging.LogDir
	if logDir == "" {
		logDir = filepath.Join(e.Config.RootPath, e.Config.Environment, "logs")
	}

	rec, err = StartExecutionRecord(logDir, rec, execClient, e.Logger)
	if err != nil {
		return result, err
	}

	result.Record = rec

	status := ExecutionFailed

	defer func() {
		if p := recover(); p != nil {
			rec.AddError("", "orchestrator", "", ErrProgrammer, fmt.Sprintf("panic: %v", p))
			status = ExecutionFailed
		}

		result.Elapsed = e.Clock.Now().Sub(runStart)

		if finalizeErr := rec.Finalize(status); finalizeErr != nil {
			e.Logger.Warn("finalizing execution record failed", slog.String("error", finalizeErr.Error()))
		}
	}()

	e.resetCaches()

	deadline, hasDeadline := runDeadline(runStart, e.Config.MaxRunDuration)

	schemas, err := e.Discover(ctx)
	if err != nil {
		rec.AddError("", "discovery", "", ErrRemoteTransient, err.Error())
		return result, err
	}

	rec.Log("info", "orchestrator", "discovery complete", map[string]any{"database_count": len(schemas)})

	regPath := registryPath(e.Config.RootPath, e.Config.Environment)

	registry, err := loadRegistry(regPath)
	if err != nil {
		rec.AddError("", "registry", "", ErrLocalIO, err.Error())
		return result, err
	}

	lastStarted := -1

	for i, schema := range schemas {
		if hasDeadline && e.Clock.Now().After(deadline) {
			rec.Log("warn", "orchestrator", "time budget exhausted, skipping remaining databases",
				map[string]any{"processed": i, "remaining": len(schemas) - i})

			for _, skipped := range schemas[i:] {
				result.Databases = append(result.Databases, DatabaseResult{Database: skipped.ID, Status: StatusSkipped})
			}

			break
		}

		lastStarted = i

		dbResult := e.runDatabase(ctx, schema, registry, runStart, rec, deadline, hasDeadline)
		result.Databases = append(result.Databases, dbResult)
	}

	if err := e.AdvanceRotation(schemas, lastStarted); err != nil {
		e.Logger.Warn("advancing rotation pointer failed", slog.String("error", err.Error()))
	}

	anyFailed := false

	for _, d := range result.Databases {
		if d.Status == StatusFailed {
			anyFailed = true
		}
	}

	if anyFailed {
		status = ExecutionFailed
	} else {
		status = ExecutionCompleted
	}

	return result, nil
}

// runDeadline computes the run's absolute deadline from Config.MaxRunDuration.
// "0" or "" means unbounded (§5: "no operation is expected to suspend for
// more than the configured per-call timeout" — the run-level budget is a
// separate, optional ceiling).
func runDeadline(start time.Time, maxRunDuration string) (time.Time, bool) {
	if maxRunDuration == "" || maxRunDuration == "0" {
		return time.Time{}, false
	}

	d, err := time.ParseDuration(maxRunDuration)
	if err != nil || d <= 0 {
		return time.Time{}, false
	}

	return start.Add(d), true
}

// runDatabase executes the fixed six-step pipeline for one database (§4.1
// step 6): Folder Manager, Schema Sync, Row Sync both directions, Record
// File Sync, Invariants check, Archival. A failure in any step marks the
// database failed for this run without aborting the overall run. If the
// run's time budget is crossed between steps, the pipeline stops where it
// is and reports partial progress rather than running to completion or
// silently finishing (§5: "the engine finishes the current row, records
// partial progress, and exits").
func (e *Engine) runDatabase(ctx context.Context, schema RemoteDatabaseSchema, registry map[string]registryRow, runStart time.Time, rec *ExecutionRecord, deadline time.Time, hasDeadline bool) DatabaseResult {
	result := DatabaseResult{Database: schema.ID, Status: StatusOK}

	fail := func(component string, err error) DatabaseResult {
		result.Status = StatusFailed
		result.Err = err
		rec.AddError(schema.ID.String(), component, "", ErrLocalIO, err.Error())
		e.Logger.Warn("database step failed", slog.String("database", schema.ID.String()),
			slog.String("component", component), slog.String("error", err.Error()))

		return result
	}

	partial := func(component string, tablePath string, table *CanonicalTable) DatabaseResult {
		result.Status = StatusPartial
		rec.AddWarning(fmt.Sprintf("database %s: time budget exhausted after %s, stopping with partial progress",
			schema.ID, component))
		e.Logger.Warn("time budget exhausted mid-database, stopping with partial progress",
			slog.String("database", schema.ID.String()), slog.String("component", component))

		if table != nil {
			if err := csvtable.WriteFile(tablePath, table); err != nil {
				e.Logger.Warn("writing partial table failed", slog.String("database", schema.ID.String()), slog.String("error", err.Error()))
			}
		}

		return result
	}

	budgetExceeded := func() bool {
		return hasDeadline && e.Clock.Now().After(deadline)
	}

	folder, err := e.EnsureFolder(e.Config.RootPath, e.Config.Environment, schema.RemoteDatabase, registry)
	if err != nil {
		return fail("folder_manager", err)
	}

	tablePath := filepath.Join(folder.AbsolutePath, "table.csv")

	table, err := csvtable.ReadFile(tablePath)
	if err != nil {
		return fail("folder_manager", err)
	}

	diff, err := e.SyncSchema(ctx, schema, table)
	if err != nil {
		return fail("schema_sync", err)
	}

	if !diff.Empty() {
		rec.Log("info", "schema_sync", "schema diff applied", map[string]any{
			"database":    schema.ID.String(),
			"added_local": len(diff.AddedToTable),
			"added_remote": len(diff.AddedToRemote),
			"mismatches":  len(diff.TypeMismatches),
		})
	}

	if budgetExceeded() {
		return partial("schema_sync", tablePath, table)
	}

	exportStats, err := e.ExportRows(ctx, schema, table, runStart)
	if err != nil {
		return fail("row_sync_export", err)
	}

	result.Export = exportStats

	if budgetExceeded() {
		return partial("row_sync_export", tablePath, table)
	}

	upsertStats, err := e.UpsertRows(ctx, schema, table, runStart)
	if err != nil {
		return fail("row_sync_upsert", err)
	}

	result.Upsert = upsertStats

	if budgetExceeded() {
		return partial("row_sync_upsert", tablePath, table)
	}

	recordStats, err := e.SyncRecords(ctx, schema, folder, table, runStart)
	if err != nil {
		return fail("record_sync", err)
	}

	result.Records = recordStats

	if budgetExceeded() {
		return partial("record_sync", tablePath, table)
	}

	if err := e.CheckInvariants(ctx, schema, table, rec); err != nil {
		rec.AddWarning(fmt.Sprintf("invariant check failed for %s: %v", schema.ID, err))
	}

	if err := e.ArchiveTable(folder, table, runStart); err != nil {
		return fail("archival", err)
	}

	if err := csvtable.WriteFile(tablePath, table); err != nil {
		return fail("folder_manager", err)
	}

	rec.Log("info", "database", "database sync complete", map[string]any{
		"database": schema.ID.String(),
		"export":   exportStats,
		"upsert":   upsertStats,
		"records":  recordStats,
	})

	return result
}
