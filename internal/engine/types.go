// Package engine implements the sync engine CORE: discovery, schema
// reconciliation, bidirectional row sync, record file sync, concurrency
// control, execution logging, and archival. It knows nothing about how it
// is hosted (cron, CLI, webhook) — callers construct an Engine with a
// RemoteClient and a Config and call Run.
//
// Modeled on the teacher's internal/sync.Engine: one struct threaded
// through every stage instead of package-level globals (Design Note
// "Global engine state -> explicit Engine value").
package engine

import (
	"context"
	"time"

	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// ColumnKind is the closed set of remote property kinds a column can carry.
type ColumnKind string

const (
	KindTitle          ColumnKind = "title"
	KindText           ColumnKind = "text"
	KindNumber         ColumnKind = "number"
	KindCheckbox       ColumnKind = "checkbox"
	KindDate           ColumnKind = "date"
	KindSingleSelect   ColumnKind = "singleSelect"
	KindMultiSelect    ColumnKind = "multiSelect"
	KindURL            ColumnKind = "url"
	KindEmail          ColumnKind = "email"
	KindPhone          ColumnKind = "phone"
	KindStatus         ColumnKind = "status"
	KindRelation       ColumnKind = "relation"
	KindPeople         ColumnKind = "people"
	KindFiles          ColumnKind = "files"
	KindFormula        ColumnKind = "formula"
	KindRollup         ColumnKind = "rollup"
	KindCreatedTime    ColumnKind = "createdTime"
	KindLastEditedTime ColumnKind = "lastEditedTime"
	KindCreatedBy      ColumnKind = "createdBy"
	KindLastEditedBy   ColumnKind = "lastEditedBy"
)

// readOnlyKinds mirrors remote types the engine reads but never writes
// (§4.3 edge cases).
var readOnlyKinds = map[ColumnKind]bool{
	KindFormula:        true,
	KindRollup:         true,
	KindCreatedTime:    true,
	KindLastEditedTime: true,
	KindCreatedBy:      true,
	KindLastEditedBy:   true,
}

// ReadOnly reports whether values of this kind are ever pushed to remote.
func (k ColumnKind) ReadOnly() bool { return readOnlyKinds[k] }

// Column is one field of a canonical table: its name, kind, and (for
// single/multi-select and status) its option set.
type Column struct {
	Name    string
	Kind    ColumnKind
	Options []string
}

// RowKeyColumn and LastSyncColumn are the two synthetic columns that are
// always present and always last on a canonical table (§3).
const (
	RowKeyColumn   = "__rowKey"
	LastSyncColumn = "__lastSyncTimestamp"
)

// Cell is one value in a Row, represented as its canonical string form.
// §4.4 maps every remote property kind down to a single string
// representation (comma-joined for multi-valued kinds), so Cell carries no
// variant tag beyond the column's declared Kind telling callers how to
// interpret it.
type Cell struct {
	Value string
	Blank bool
}

// Row is one record of a canonical table: a cell per declared column, plus
// the two synthetic fields promoted to named fields for direct access.
type Row struct {
	Cells             map[string]Cell
	RowKey            string // remote page ID; blank means not yet pushed
	LastSyncTimestamp time.Time

	// Body is not populated by ExportRows nor read by SyncRecords:
	// SyncRecords fetches and pushes page bodies through the RemoteClient
	// directly. It is not a canonical table column; the page text lives
	// only in the row's record file.
	Body string

	// RecordPath is the record file's path relative to the database
	// folder, remembered across runs so a stable filename (and its
	// collision suffix) survives title edits that don't change enough to
	// force a rename.
	RecordPath string

	// recordModTime is not set or read anywhere: SyncRecords detects
	// local-side edits by comparing the record file's on-disk modification
	// time with the record's stored last-sync stamp.
	recordModTime time.Time

	// orphaned is set by UpsertRows when a non-blank row key has no
	// remote counterpart and DeletionArchivesRecords is enabled; SyncRecords
	// (archiveRecord in records.go) consumes it to move the record file.
	orphaned bool
}

// IsNew reports whether this row has never been pushed to remote.
func (r Row) IsNew() bool { return r.RowKey == "" }

// Title returns the row's title-column value, used for record file naming
// and as the minimum required field for remote row creation.
func (r Row) Title(table *CanonicalTable) string {
	for _, col := range table.Columns {
		if col.Kind == KindTitle {
			if cell, ok := r.Cells[col.Name]; ok {
				return cell.Value
			}
		}
	}

	return ""
}

// CanonicalTable is the in-memory form of table.csv: ordered columns (the
// two synthetic columns always last) plus rows.
type CanonicalTable struct {
	Columns []Column
	Rows    []*Row
}

// FindByRowKey returns the row with the given remote page ID, or nil.
func (t *CanonicalTable) FindByRowKey(rowKey string) *Row {
	if rowKey == "" {
		return nil
	}

	for _, r := range t.Rows {
		if r.RowKey == rowKey {
			return r
		}
	}

	return nil
}

// HasColumn reports whether a column with this name exists.
func (t *CanonicalTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}

	return false
}

// RemoteDatabase is the schema-level remote entity Discovery enumerates.
type RemoteDatabase struct {
	ID          sourceid.DatabaseID
	DataSource  sourceid.DataSourceID
	DisplayName string
}

// LocalFolder is the on-disk container for one database's table, record
// files, and archive subfolder.
type LocalFolder struct {
	AbsolutePath    string
	Name            string
	ArchiveSubpath  string
}

// SchemaDiff is the result of reconciling remote and local columns (§4.3).
type SchemaDiff struct {
	AddedToTable   []Column
	AddedToRemote  []Column
	TypeMismatches []TypeMismatch
}

// Empty reports whether this diff contains no changes (law 8: idempotent
// schema sync with no intervening change yields an empty diff).
func (d SchemaDiff) Empty() bool {
	return len(d.AddedToTable) == 0 && len(d.AddedToRemote) == 0 && len(d.TypeMismatches) == 0
}

// TypeMismatch records a column whose kind differs between sides; the
// engine never coerces silently (§4.3).
type TypeMismatch struct {
	Column      string
	RemoteKind  ColumnKind
	TableKind   ColumnKind
}

// ExportStats is the result of Row Sync (remote -> canonical table), §4.4.
type ExportStats struct {
	Read, Added, Updated, Unchanged int
}

// UpsertStats is the result of Row Sync (canonical table -> remote), §4.5.
type UpsertStats struct {
	Created, Updated, Skipped, Conflicted int
}

// RecordStats is the result of Record File Sync, §4.6.
type RecordStats struct {
	Materialized, Updated, Archived int
}

// DatabaseStatus is the per-database outcome reported in a RunResult.
type DatabaseStatus string

const (
	StatusOK      DatabaseStatus = "ok"
	StatusSkipped DatabaseStatus = "skipped"
	StatusFailed  DatabaseStatus = "failed"
	StatusPartial DatabaseStatus = "partial"
)

// DatabaseResult is one database's outcome within a run.
type DatabaseResult struct {
	Database sourceid.DatabaseID
	Status   DatabaseStatus
	Export   ExportStats
	Upsert   UpsertStats
	Records  RecordStats
	Err      error
}

// RunResult is the Orchestrator's return value (§4.1).
type RunResult struct {
	Databases []DatabaseResult
	Elapsed   time.Duration
	Record    *ExecutionRecord
}

// RemoteClient is the CORE's view of the remote store: search, schema,
// paginated rows, row/property mutation. internal/notion.Client implements
// this against github.com/jomei/notionapi.
// "Accept interfaces, return structs" (Design Note 2): the CORE depends on
// this interface, never on *notion.Client directly.
type RemoteClient interface {
	Search(ctx context.Context) ([]RemoteDatabaseSchema, error)
	FetchSchema(ctx context.Context, id sourceid.DatabaseID) (RemoteDatabaseSchema, error)
	PaginateRows(ctx context.Context, ds sourceid.DataSourceID, visit func(RemotePage) error) error
	CreateRow(ctx context.Context, ds sourceid.DataSourceID, values map[string]Cell, table *CanonicalTable) (string, error)
	UpdateRow(ctx context.Context, pageID string, values map[string]Cell, table *CanonicalTable) error
	ArchiveRow(ctx context.Context, pageID string) error
	EnsureRemoteColumn(ctx context.Context, id sourceid.DatabaseID, col Column) error
	UnionSelectOptions(ctx context.Context, id sourceid.DatabaseID, columnName string, options []string) error
	FetchPageBody(ctx context.Context, pageID string) (string, error)
	ReplacePageBody(ctx context.Context, pageID string, body string) error
}

// RemoteDatabaseSchema is what Discovery and Schema Sync need from the
// remote store about one database: its identity plus typed columns.
type RemoteDatabaseSchema struct {
	RemoteDatabase
	Columns []Column
}

// RemotePage is one row as read from the remote store: its page ID, the
// mapped cell values keyed by column name, the remote last-edited
// timestamp (used for the §4.5 conflict comparison), and whether it is
// archived.
type RemotePage struct {
	PageID       string
	Values       map[string]Cell
	LastEditedAt time.Time
	Archived     bool
}
