package csvtable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowkeeper/dbsync/internal/engine"
)

func TestRead_EmptyInputYieldsSyntheticColumnsOnly(t *testing.T) {
	table, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, engine.RowKeyColumn, table.Columns[0].Name)
	assert.Equal(t, engine.LastSyncColumn, table.Columns[1].Name)
	assert.Empty(t, table.Rows)
}

func TestWriteThenRead_RoundTrips(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	table := &engine.CanonicalTable{
		Columns: []engine.Column{
			{Name: "Name", Kind: engine.KindText},
			{Name: "Count", Kind: engine.KindNumber},
			{Name: engine.RowKeyColumn, Kind: engine.KindText},
			{Name: engine.LastSyncColumn, Kind: engine.KindText},
		},
		Rows: []*engine.Row{
			{
				RowKey:            "row-1",
				LastSyncTimestamp: ts,
				Cells: map[string]engine.Cell{
					"Name":  {Value: "Widget, Inc."},
					"Count": {Value: "3"},
				},
			},
		},
	}

	var buf strings.Builder
	require.NoError(t, Write(&buf, table))

	// A comma inside a value must survive quoting through RFC-4180.
	assert.Contains(t, buf.String(), `"Widget, Inc."`)

	got, err := Read(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)

	row := got.Rows[0]
	assert.Equal(t, "row-1", row.RowKey)
	assert.True(t, ts.Equal(row.LastSyncTimestamp))
	assert.Equal(t, "Widget, Inc.", row.Cells["Name"].Value)
	assert.Equal(t, "3", row.Cells["Count"].Value)
}

func TestRead_SecondRowCarriesColumnKinds(t *testing.T) {
	csvText := "Name,__rowKey,__lastSyncTimestamp\ntext,text,text\nAcme,row-1,\n"

	table, err := Read(strings.NewReader(csvText))
	require.NoError(t, err)
	require.Len(t, table.Columns, 3)

	for _, c := range table.Columns {
		assert.Equal(t, engine.KindText, c.Kind)
	}

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "row-1", table.Rows[0].RowKey)
	assert.True(t, table.Rows[0].LastSyncTimestamp.IsZero())
}

func TestReadFile_MissingFileYieldsEmptyTable(t *testing.T) {
	table, err := ReadFile(filepath.Join(t.TempDir(), "does-not-exist.csv"))
	require.NoError(t, err)
	require.Len(t, table.Columns, 2)
	assert.Empty(t, table.Rows)
}

func TestWriteFile_IsAtomicAndReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")

	table := &engine.CanonicalTable{
		Columns: []engine.Column{
			{Name: engine.RowKeyColumn, Kind: engine.KindText},
			{Name: engine.LastSyncColumn, Kind: engine.KindText},
		},
		Rows: []*engine.Row{{RowKey: "r1"}},
	}

	require.NoError(t, WriteFile(path, table))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "r1", got.Rows[0].RowKey)

	// no leftover temp file
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not remain after WriteFile")
}
