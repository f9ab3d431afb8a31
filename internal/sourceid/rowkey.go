package sourceid

// RowKey is a composite (DatabaseID, remote page ID) pair used as a map key
// for canonical-table lookups and row identity tracking across a run.
// Replaces ad-hoc "databaseID:pageID" string concatenation.
type RowKey struct {
	Database DatabaseID
	PageID   string
}

// NewRowKey builds a RowKey from a normalized database ID and a raw remote
// page ID.
func NewRowKey(database DatabaseID, pageID string) RowKey {
	return RowKey{Database: database, PageID: pageID}
}

// String returns the "databaseID:pageID" representation used in log lines
// and execution records.
func (k RowKey) String() string {
	return k.Database.String() + ":" + k.PageID
}

// IsZero reports whether both components are zero/empty.
func (k RowKey) IsZero() bool {
	return k.Database.IsZero() && k.PageID == ""
}
