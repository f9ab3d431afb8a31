package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ExportRows reflects every non-archived remote row into the canonical
// table (§4.4). Rows are visited in the order the remote store returns
// them; no sort by remote-row-id is applied. Retry on transient
// errors is handled inside e.Remote (internal/notion wraps
// internal/retryutil). Non-transient errors abort the export.
func (e *Engine) ExportRows(ctx context.Context, db RemoteDatabaseSchema, table *CanonicalTable, runStart time.Time) (ExportStats, error) {
	var stats ExportStats

	err := e.Remote.PaginateRows(ctx, db.DataSource, func(page RemotePage) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if page.Archived {
			return nil
		}

		stats.Read++
		e.caches.remoteByRowKey[page.PageID] = page

		row := table.FindByRowKey(page.PageID)
		if row == nil {
			row = &Row{RowKey: page.PageID, Cells: make(map[string]Cell)}
			table.Rows = append(table.Rows, row)
			stats.Added++
		} else {
			stats.Updated++
		}

		changed := applyRemoteValues(row, page.Values, table.Columns)
		if !changed && stats.Updated > 0 {
			// applyRemoteValues reported no cell-level change; still
			// counted as "read", but not as a real update.
			stats.Updated--
			stats.Unchanged++
		}

		// Only advance the sync stamp when something was actually pulled
		// in (or this is the row's first sighting). Stamping it on every
		// pass would make row.LastSyncTimestamp always read as "now,"
		// defeating classifyRow's use of it to detect a genuinely stale
		// remote edit.
		if changed || row.LastSyncTimestamp.IsZero() {
			row.LastSyncTimestamp = runStart
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRemotePermanent) {
			return stats, fmt.Errorf("export aborted for %s: %w", db.ID, err)
		}

		return stats, fmt.Errorf("%w: exporting rows for %s: %v", ErrRemoteTransient, db.ID, err)
	}

	e.Logger.Debug("row export complete",
		slog.String("database", db.ID.String()),
		slog.Int("read", stats.Read),
		slog.Int("added", stats.Added),
		slog.Int("updated", stats.Updated),
		slog.Int("unchanged", stats.Unchanged),
	)

	return stats, nil
}

// applyRemoteValues copies remote cell values into row's Cells map, using
// schema-aware column name matching so the row picks up the table's
// canonical column names (not necessarily the remote's verbatim names).
// Returns whether any value actually changed.
func applyRemoteValues(row *Row, values map[string]Cell, columns []Column) bool {
	changed := false
	cache := make(map[string]matchResult)

	names := columnNames(columns)

	for remoteName, cell := range values {
		target := remoteName

		if match, ok := matchColumn(remoteName, names, cache); ok {
			target = match.Candidate
		}

		existing, ok := row.Cells[target]
		if !ok || existing != cell {
			row.Cells[target] = cell
			changed = true
		}
	}

	return changed
}
