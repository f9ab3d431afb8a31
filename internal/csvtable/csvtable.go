// Package csvtable reads and writes the canonical table format (§6):
// RFC-4180 CSV, UTF-8, LF line endings, a header row of column names, a
// second row of kind tokens, then data rows. The two synthetic columns
// __rowKey and __lastSyncTimestamp are always last.
//
// Grounded on stdlib encoding/csv: no pack example imports a third-party
// CSV library (xuri/excelize covers the registry workbook's xlsx format,
// not CSV), and encoding/csv already implements RFC-4180 quoting
// correctly, so a dependency would add no value here (documented in
// DESIGN.md).
package csvtable

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rowkeeper/dbsync/internal/engine"
)

// Read parses a canonical table from r. An empty or missing file yields a
// table with only the two synthetic columns and no rows.
func Read(r io.Reader) (*engine.CanonicalTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return emptyTable(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("csvtable: reading header: %w", err)
	}

	kinds, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csvtable: reading kind row: %w", err)
	}

	table := &engine.CanonicalTable{}

	for i, name := range header {
		kind := engine.KindText
		if i < len(kinds) {
			kind = engine.ColumnKind(kinds[i])
		}

		table.Columns = append(table.Columns, engine.Column{Name: name, Kind: kind})
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("csvtable: reading row: %w", err)
		}

		row, err := recordToRow(record, table.Columns)
		if err != nil {
			return nil, err
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func emptyTable() *engine.CanonicalTable {
	return &engine.CanonicalTable{
		Columns: []engine.Column{
			{Name: engine.RowKeyColumn, Kind: engine.KindText},
			{Name: engine.LastSyncColumn, Kind: engine.KindText},
		},
	}
}

func recordToRow(record []string, columns []engine.Column) (*engine.Row, error) {
	row := &engine.Row{Cells: make(map[string]engine.Cell, len(columns))}

	for i, col := range columns {
		var value string
		if i < len(record) {
			value = record[i]
		}

		switch col.Name {
		case engine.RowKeyColumn:
			row.RowKey = value
		case engine.LastSyncColumn:
			if value != "" {
				t, err := time.Parse(time.RFC3339, value)
				if err != nil {
					return nil, fmt.Errorf("csvtable: parsing %s: %w", engine.LastSyncColumn, err)
				}

				row.LastSyncTimestamp = t
			}
		default:
			row.Cells[col.Name] = engine.Cell{Value: value, Blank: value == ""}
		}
	}

	return row, nil
}

// Write serializes a canonical table in the §6 layout: header, kind row,
// then one data row per Row, synthetic columns always last.
func Write(w io.Writer, table *engine.CanonicalTable) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false

	header := make([]string, len(table.Columns))
	kinds := make([]string, len(table.Columns))

	for i, c := range table.Columns {
		header[i] = c.Name
		kinds[i] = string(c.Kind)
	}

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csvtable: writing header: %w", err)
	}

	if err := cw.Write(kinds); err != nil {
		return fmt.Errorf("csvtable: writing kind row: %w", err)
	}

	for _, row := range table.Rows {
		record := make([]string, len(table.Columns))

		for i, col := range table.Columns {
			switch col.Name {
			case engine.RowKeyColumn:
				record[i] = row.RowKey
			case engine.LastSyncColumn:
				if !row.LastSyncTimestamp.IsZero() {
					record[i] = row.LastSyncTimestamp.UTC().Format(time.RFC3339)
				}
			default:
				record[i] = row.Cells[col.Name].Value
			}
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csvtable: writing row %s: %w", row.RowKey, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// ReadFile and WriteFile are convenience wrappers around Read/Write for the
// table.csv path inside a database folder.
func ReadFile(path string) (*engine.CanonicalTable, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return emptyTable(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("csvtable: opening %s: %w", path, err)
	}
	defer f.Close()

	return Read(f)
}

// WriteFile writes a canonical table atomically (temp file + rename).
func WriteFile(path string, table *engine.CanonicalTable) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("csvtable: creating %s: %w", tmp, err)
	}

	if err := Write(f, table); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("csvtable: closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("csvtable: committing %s: %w", path, err)
	}

	return nil
}
