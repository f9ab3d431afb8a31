package engine

import (
	"context"
	"fmt"
	"log/slog"
)

const statusInProgress = "In Progress"

// CheckInvariants enforces the Single-In-Progress invariant for the
// agent-tasks database (§5): at most one row may carry the status value
// "In Progress." Violations are resolved by demoting every offender
// except the most-recently-synced one to a prior status.
//
// "Prior status" is not given a concrete source by the spec beyond "a
// prior status" — this engine demotes to the status column's configured
// option immediately preceding "In Progress" (or its first non-"In
// Progress" option if "In Progress" is first), a deterministic choice
// recorded in DESIGN.md.
func (e *Engine) CheckInvariants(ctx context.Context, db RemoteDatabaseSchema, table *CanonicalTable, rec *ExecutionRecord) error {
	if db.ID.String() != e.Config.AgentTasksDatabaseID || e.Config.AgentTasksDatabaseID == "" {
		return nil
	}

	statusCol := findColumn(table.Columns, "Status")
	if statusCol == nil || statusCol.Kind != KindStatus {
		return nil
	}

	var offenders []*Row

	for _, row := range table.Rows {
		if cell, ok := row.Cells[statusCol.Name]; ok && !cell.Blank && cell.Value == statusInProgress {
			offenders = append(offenders, row)
		}
	}

	if len(offenders) <= 1 {
		return nil
	}

	mostRecent := offenders[0]
	for _, row := range offenders[1:] {
		if row.LastSyncTimestamp.After(mostRecent.LastSyncTimestamp) {
			mostRecent = row
		}
	}

	fallback := priorStatus(statusCol.Options)

	for _, row := range offenders {
		if row == mostRecent {
			continue
		}

		row.Cells[statusCol.Name] = Cell{Value: fallback}

		if err := e.pushRowValues(ctx, db.ID, row, table); err != nil {
			e.Logger.Warn("demoting offending row failed", slog.String("row_key", row.RowKey), slog.String("error", err.Error()))
			continue
		}

		e.Logger.Warn("demoted row violating single-in-progress invariant",
			slog.String("database", db.ID.String()),
			slog.String("row_key", row.RowKey),
			slog.String("demoted_to", fallback))

		if rec != nil {
			rec.AddWarning(fmt.Sprintf("database %s: demoted row %s from %s to %s (single-in-progress invariant)",
				db.ID, row.RowKey, statusInProgress, fallback))
		}
	}

	return nil
}

func priorStatus(options []string) string {
	for i, o := range options {
		if o == statusInProgress {
			if i > 0 {
				return options[i-1]
			}

			break
		}
	}

	for _, o := range options {
		if o != statusInProgress {
			return o
		}
	}

	return statusInProgress
}
