package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// SyncSchema reconciles the set of columns between the remote database and
// the local canonical table (§4.3). Additions always propagate in both
// directions; deletions are never propagated, whether or not
// AllowSchemaDeletions is set; type mismatches are recorded and never
// silently coerced.
//
// Grounded on the teacher's internal/sync/reconciler.go diff-then-act
// shape, generalized from filesystem-tree diffing to column-set diffing.
func (e *Engine) SyncSchema(ctx context.Context, remote RemoteDatabaseSchema, table *CanonicalTable) (SchemaDiff, error) {
	var diff SchemaDiff

	cache := e.caches.columnMatches

	tableNames := columnNames(table.Columns)
	remoteNames := columnNames(remote.Columns)

	// Remote -> table: columns the remote has that the table lacks, under
	// fuzzy matching, are appended (placed left of the synthetic columns,
	// in the order of remote.Columns).
	for _, rc := range remote.Columns {
		if _, ok := matchColumn(rc.Name, tableNames, cache); ok {
			continue
		}

		diff.AddedToTable = append(diff.AddedToTable, rc)
	}

	// Table -> remote: columns the table has that the remote lacks get a
	// best-effort type mapping (text for ambiguous kinds).
	for _, tc := range table.Columns {
		if tc.Name == RowKeyColumn || tc.Name == LastSyncColumn {
			continue
		}

		if _, ok := matchColumn(tc.Name, remoteNames, cache); ok {
			continue
		}

		diff.AddedToRemote = append(diff.AddedToRemote, Column{Name: tc.Name, Kind: bestEffortRemoteKind(tc.Kind)})
	}

	// Type mismatches: same matched name, different kind. Neither side is
	// touched; row sync attempts value-level coercion for safe pairs.
	for _, rc := range remote.Columns {
		match, ok := matchColumn(rc.Name, tableNames, cache)
		if !ok {
			continue
		}

		tc := findColumn(table.Columns, match.Candidate)
		if tc != nil && tc.Kind != rc.Kind {
			diff.TypeMismatches = append(diff.TypeMismatches, TypeMismatch{
				Column:     match.Candidate,
				RemoteKind: rc.Kind,
				TableKind:  tc.Kind,
			})
		}
	}

	if err := e.applyDiff(ctx, remote, table, diff); err != nil {
		return diff, err
	}

	if !diff.Empty() {
		e.invalidateSchemaCache(remote.ID)
	}

	return diff, nil
}

// applyDiff mutates the table in memory (additions) and issues remote
// schema calls (additions, option unions) per the diff computed above.
func (e *Engine) applyDiff(ctx context.Context, remote RemoteDatabaseSchema, table *CanonicalTable, diff SchemaDiff) error {
	if len(diff.AddedToTable) > 0 {
		insertBeforeSynthetic(table, diff.AddedToTable)
	}

	if e.Config.AllowSchemaDeletions {
		// Deletion propagation is out of scope for this engine version —
		// the source never implemented column-rename detection either
		// (§9 open question); nothing destructive happens here even when
		// the flag is set, beyond what the additive paths already do.
		e.Logger.Debug("allow_schema_deletions is set but no deletion action is implemented",
			slog.String("database", remote.ID.String()))
	}

	for _, col := range diff.AddedToRemote {
		if err := e.Remote.EnsureRemoteColumn(ctx, remote.ID, col); err != nil {
			return fmt.Errorf("%w: creating remote property %q: %v", ErrRemoteTransient, col.Name, err)
		}
	}

	for _, tm := range diff.TypeMismatches {
		e.Logger.Warn("schema type mismatch, leaving both sides untouched",
			slog.String("database", remote.ID.String()),
			slog.String("column", tm.Column),
			slog.String("remote_kind", string(tm.RemoteKind)),
			slog.String("table_kind", string(tm.TableKind)))
	}

	// Option sets for single/multi-select and status are unioned (never
	// removed).
	for _, rc := range remote.Columns {
		if rc.Kind != KindSingleSelect && rc.Kind != KindMultiSelect && rc.Kind != KindStatus {
			continue
		}

		tc := findColumn(table.Columns, rc.Name)
		if tc == nil {
			continue
		}

		union := unionOptions(rc.Options, tc.Options)
		if len(union) == len(rc.Options) && len(union) == len(tc.Options) {
			continue
		}

		tc.Options = union

		if err := e.Remote.UnionSelectOptions(ctx, remote.ID, rc.Name, union); err != nil {
			return fmt.Errorf("%w: unioning options for %q: %v", ErrRemoteTransient, rc.Name, err)
		}
	}

	return nil
}

// bestEffortRemoteKind maps an ambiguous local kind to a remote-creatable
// kind. Only kinds the remote store can materialize via property creation
// are valid targets; read-only kinds never originate locally.
func bestEffortRemoteKind(k ColumnKind) ColumnKind {
	if k.ReadOnly() {
		return KindText
	}

	return k
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	return names
}

func findColumn(cols []Column, name string) *Column {
	for i := range cols {
		if cols[i].Name == name {
			return &cols[i]
		}
	}

	return nil
}

// insertBeforeSynthetic appends new columns immediately before the two
// synthetic trailing columns, preserving their always-last invariant (§3).
func insertBeforeSynthetic(table *CanonicalTable, added []Column) {
	cut := len(table.Columns)

	for i, c := range table.Columns {
		if c.Name == RowKeyColumn {
			cut = i
			break
		}
	}

	head := append([]Column{}, table.Columns[:cut]...)
	tail := append([]Column{}, table.Columns[cut:]...)

	head = append(head, added...)
	table.Columns = append(head, tail...)
}

// unionOptions merges two option lists, preserving a's order then
// appending b's novel entries.
func unionOptions(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))

	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	return out
}
