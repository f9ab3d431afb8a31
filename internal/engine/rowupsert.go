package engine

import (
	"context"
	"log/slog"
	"net/mail"
	"net/url"
	"strconv"
	"time"

	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// rowAction is the classification an upsert row falls into (§4.5 step 1).
type rowAction string

const (
	actionCreate   rowAction = "create"
	actionUpdate   rowAction = "update"
	actionConflict rowAction = "conflict"
	actionOrphan   rowAction = "orphan"
	actionNone     rowAction = "none"
)

const (
	conflictPolicyRemoteWins = "remote_wins"
	conflictPolicyLocalWins  = "local_wins"
)

// UpsertRows pushes table-side changes back to the remote (§4.5). Writes
// are issued one row at a time so a single row's invalid payload never
// fails the whole database.
func (e *Engine) UpsertRows(ctx context.Context, db RemoteDatabaseSchema, table *CanonicalTable, runStart time.Time) (UpsertStats, error) {
	var stats UpsertStats

	policy := e.conflictPolicy()

	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		action, remotePage := e.classifyRow(row, table.Columns)

		switch action {
		case actionCreate:
			if e.upsertCreate(ctx, db, table, row, runStart) {
				stats.Created++
			} else {
				stats.Skipped++
			}

		case actionUpdate:
			if err := e.pushRowValues(ctx, db.ID, row, table); err != nil {
				e.Logger.Warn("row update failed", slog.String("row_key", row.RowKey), slog.String("error", err.Error()))
				stats.Skipped++

				continue
			}

			row.LastSyncTimestamp = runStart
			stats.Updated++

		case actionConflict:
			e.resolveConflict(ctx, db.ID, policy, row, table, remotePage, runStart)
			stats.Conflicted++

		case actionOrphan:
			e.handleOrphan(row)
			stats.Skipped++

		case actionNone:
			// Remote state matches what we last synced; nothing to push.
		}
	}

	return stats, nil
}

// classifyRow implements §4.5 step 1's decision table using the remote
// snapshot gathered during ExportRows this run.
func (e *Engine) classifyRow(row *Row, columns []Column) (rowAction, RemotePage) {
	if row.IsNew() {
		return actionCreate, RemotePage{}
	}

	remote, present := e.caches.remoteByRowKey[row.RowKey]
	if !present {
		return actionOrphan, RemotePage{}
	}

	switch {
	case remote.LastEditedAt.Before(row.LastSyncTimestamp):
		// "Remote hasn't changed since our last sync" is necessary but
		// not sufficient evidence of a pending local edit — it is true
		// on every quiescent re-run too. Only push when the row's
		// current cells actually disagree with the remote snapshot.
		if !rowDiffersFromRemote(row, remote, columns) {
			return actionNone, remote
		}

		return actionUpdate, remote
	case remote.LastEditedAt.After(row.LastSyncTimestamp):
		return actionConflict, remote
	default:
		return actionNone, remote
	}
}

// rowDiffersFromRemote reports whether row's cells disagree with the
// remote snapshot for this run, under the same column-name matching
// ExportRows uses to merge remote values in. Column names on either side
// may drift (§4.3), so a raw map comparison would false-positive.
func rowDiffersFromRemote(row *Row, remote RemotePage, columns []Column) bool {
	cache := make(map[string]matchResult)
	names := columnNames(columns)

	for remoteName, remoteCell := range remote.Values {
		target := remoteName
		if match, ok := matchColumn(remoteName, names, cache); ok {
			target = match.Candidate
		}

		if row.Cells[target] != remoteCell {
			return true
		}
	}

	return false
}

// upsertCreate handles §4.5 steps 3-4: skip titleless rows, otherwise
// create and stamp the new row key.
func (e *Engine) upsertCreate(ctx context.Context, db RemoteDatabaseSchema, table *CanonicalTable, row *Row, runStart time.Time) bool {
	if row.Title(table) == "" {
		e.Logger.Warn("skipping row creation: title column is empty")
		return false
	}

	validated := e.validateCellsForWrite(ctx, db.ID, row, table)

	pageID, err := e.Remote.CreateRow(ctx, db.DataSource, validated, table)
	if err != nil {
		e.Logger.Warn("row creation failed", slog.String("error", err.Error()))
		return false
	}

	row.RowKey = pageID
	row.LastSyncTimestamp = runStart

	return true
}

// pushRowValues validates and writes a row's current values to remote
// (§4.5 step 5 + the update branch of step 1).
func (e *Engine) pushRowValues(ctx context.Context, dbID sourceid.DatabaseID, row *Row, table *CanonicalTable) error {
	validated := e.validateCellsForWrite(ctx, dbID, row, table)
	return e.Remote.UpdateRow(ctx, row.RowKey, validated, table)
}

// resolveConflict applies §4.5 step 2: remote-wins refreshes the table row
// from the snapshot already read this run; local-wins pushes the table's
// values over remote. The engine never merges at the cell level.
func (e *Engine) resolveConflict(ctx context.Context, dbID sourceid.DatabaseID, policy string, row *Row, table *CanonicalTable, remote RemotePage, runStart time.Time) {
	switch policy {
	case conflictPolicyLocalWins:
		if err := e.pushRowValues(ctx, dbID, row, table); err != nil {
			e.Logger.Warn("conflict resolution (local-wins) push failed",
				slog.String("row_key", row.RowKey), slog.String("error", err.Error()))

			return
		}
	default:
		applyRemoteValues(row, remote.Values, table.Columns)
	}

	row.LastSyncTimestamp = runStart
	e.Logger.Info("conflict resolved", slog.String("row_key", row.RowKey), slog.String("policy", policy))
}

// handleOrphan handles §4.5 step 1's orphan branch: a non-blank row key
// absent from the remote snapshot. Archival (moving the record file and
// clearing the key) is performed later by SyncRecords (archiveRecord in
// records.go); here the row is only flagged.
func (e *Engine) handleOrphan(row *Row) {
	if e.Config.DeletionArchivesRecords {
		row.orphaned = true
		return
	}

	e.Logger.Warn("row has no remote counterpart and deletion archiving is disabled",
		slog.String("row_key", row.RowKey))
}

// conflictPolicy resolves the effective policy: Config.ConflictPolicy,
// defaulting to remote-wins (§4.5).
func (e *Engine) conflictPolicy() string {
	if e.Config.ConflictPolicy == conflictPolicyLocalWins {
		return conflictPolicyLocalWins
	}

	return conflictPolicyRemoteWins
}

// validateCellsForWrite applies §4.5 step 5: select/status values not in
// the option set are attempted as new options (on failure, cleared with a
// warning); numeric/date/url/email/phone values are validated, invalid
// ones cleared with a warning. Read-only columns are never pushed.
func (e *Engine) validateCellsForWrite(ctx context.Context, dbID sourceid.DatabaseID, row *Row, table *CanonicalTable) map[string]Cell {
	out := make(map[string]Cell, len(row.Cells))

	for i := range table.Columns {
		col := &table.Columns[i]
		if col.Name == RowKeyColumn || col.Name == LastSyncColumn || col.Kind.ReadOnly() {
			continue
		}

		cell, ok := row.Cells[col.Name]
		if !ok {
			continue
		}

		out[col.Name] = e.validateCell(ctx, dbID, col, cell)
	}

	return out
}

func (e *Engine) validateCell(ctx context.Context, dbID sourceid.DatabaseID, col *Column, cell Cell) Cell {
	if cell.Blank || cell.Value == "" {
		return cell
	}

	switch col.Kind {
	case KindNumber:
		if _, err := strconv.ParseFloat(cell.Value, 64); err != nil {
			e.Logger.Warn("clearing invalid numeric cell", slog.String("column", col.Name), slog.String("value", cell.Value))
			return Cell{Blank: true}
		}
	case KindURL:
		if _, err := url.ParseRequestURI(cell.Value); err != nil {
			e.Logger.Warn("clearing invalid url cell", slog.String("column", col.Name), slog.String("value", cell.Value))
			return Cell{Blank: true}
		}
	case KindEmail:
		if _, err := mail.ParseAddress(cell.Value); err != nil {
			e.Logger.Warn("clearing invalid email cell", slog.String("column", col.Name), slog.String("value", cell.Value))
			return Cell{Blank: true}
		}
	case KindDate:
		if _, err := time.Parse(time.RFC3339, cell.Value); err != nil {
			if _, err2 := time.Parse("2006-01-02", cell.Value); err2 != nil {
				e.Logger.Warn("clearing invalid date cell", slog.String("column", col.Name), slog.String("value", cell.Value))
				return Cell{Blank: true}
			}
		}
	case KindSingleSelect, KindStatus:
		if !contains(col.Options, cell.Value) {
			if err := e.Remote.UnionSelectOptions(ctx, dbID, col.Name, []string{cell.Value}); err != nil {
				e.Logger.Warn("clearing select value: option could not be created",
					slog.String("column", col.Name), slog.String("value", cell.Value))

				return Cell{Blank: true}
			}

			col.Options = append(col.Options, cell.Value)
		}
	}

	return cell
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}

	return false
}
