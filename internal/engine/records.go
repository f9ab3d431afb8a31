package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rowkeeper/dbsync/internal/recordfile"
)

const maxTitleLength = 180

var reservedChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// sanitizeTitle strips filesystem-reserved characters, collapses
// whitespace, and caps length (§4.6 file name derivation).
func sanitizeTitle(title string) string {
	s := reservedChars.ReplaceAllString(title, "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSpace(s)

	if s == "" {
		s = "untitled"
	}

	if len(s) > maxTitleLength {
		s = strings.TrimSpace(s[:maxTitleLength])
	}

	return s
}

// filenameWithSuffix renders the ` (2)`, ` (3)`, ... collision suffix
// scheme (§4.6).
func filenameWithSuffix(base string, suffix int) string {
	if suffix == 0 {
		return base + ".txt"
	}

	return fmt.Sprintf("%s (%d).txt", base, suffix)
}

// assignSuffix returns the lowest suffix not yet claimed for base, per the
// §9 open-question decision ("prefer the lowest unused suffix"). Because
// rows are walked in stable table order every run, this is deterministic
// run over run without needing to persist prior assignments.
func assignSuffix(claimed map[string]map[int]bool, base string) int {
	used, ok := claimed[base]
	if !ok {
		used = make(map[int]bool)
		claimed[base] = used
	}

	// 0 is the unsuffixed name; the first collision is " (2)", not " (1)".
	n := 0
	for used[n] {
		if n == 0 {
			n = 2
		} else {
			n++
		}
	}

	used[n] = true

	return n
}

// SyncRecords keeps each row's textual record file aligned with the
// remote page body (§4.6). Rows flagged orphaned by UpsertRows are moved
// to .archive/ here, once schema/row sync for this run has already run.
func (e *Engine) SyncRecords(ctx context.Context, db RemoteDatabaseSchema, folder LocalFolder, table *CanonicalTable, runStart time.Time) (RecordStats, error) {
	var stats RecordStats

	claimed := make(map[string]map[int]bool)

	byRowKey := indexExistingRecords(folder.AbsolutePath)
	for _, row := range table.Rows {
		if row.RecordPath == "" {
			if name, ok := byRowKey[row.RowKey]; ok {
				row.RecordPath = name
			}
		}
	}

	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if row.orphaned {
			if err := e.archiveRecord(folder, row); err != nil {
				e.Logger.Warn("archiving record failed", slog.String("row_key", row.RowKey), slog.String("error", err.Error()))
				continue
			}

			stats.Archived++

			continue
		}

		if row.RowKey == "" {
			continue
		}

		base := sanitizeTitle(row.Title(table))
		suffix := assignSuffix(claimed, base)
		desiredName := filenameWithSuffix(base, suffix)
		desiredPath := filepath.Join(folder.AbsolutePath, desiredName)

		changed, err := e.reconcileRecord(ctx, db, row, folder, desiredPath, suffix, runStart)
		if err != nil {
			e.Logger.Warn("record sync failed", slog.String("row_key", row.RowKey), slog.String("error", err.Error()))
			continue
		}

		row.RecordPath = desiredName

		switch changed {
		case recordMaterialized:
			stats.Materialized++
		case recordUpdated:
			stats.Updated++
		}
	}

	return stats, nil
}

type recordChange int

const (
	recordUnchanged recordChange = iota
	recordMaterialized
	recordUpdated
)

// reconcileRecord applies §4.6's bidirectional policy for a single row: if
// the file is absent it is materialized from remote; otherwise whichever
// side changed since the file's own recorded lastSync stamp wins, with
// both-changed resolved per the same conflict policy as row sync.
func (e *Engine) reconcileRecord(ctx context.Context, db RemoteDatabaseSchema, row *Row, folder LocalFolder, desiredPath string, suffix int, runStart time.Time) (recordChange, error) {
	existingPath := desiredPath
	if row.RecordPath != "" {
		existingPath = filepath.Join(folder.AbsolutePath, row.RecordPath)
	}

	info, statErr := os.Stat(existingPath)

	if statErr != nil {
		body, err := e.Remote.FetchPageBody(ctx, row.RowKey)
		if err != nil {
			return recordUnchanged, fmt.Errorf("fetching body: %w", err)
		}

		if err := writeRecord(desiredPath, row.RowKey, suffix, runStart, body); err != nil {
			return recordUnchanged, err
		}

		return recordMaterialized, nil
	}

	data, err := os.ReadFile(existingPath)
	if err != nil {
		return recordUnchanged, fmt.Errorf("reading record file: %w", err)
	}

	rec, err := recordfile.Parse(data)
	if err != nil {
		return recordUnchanged, fmt.Errorf("parsing record file: %w", err)
	}

	remote, present := e.caches.remoteByRowKey[row.RowKey]

	remoteChanged := present && remote.LastEditedAt.After(rec.LastSync)
	localChanged := info.ModTime().After(rec.LastSync)

	renamed := existingPath != desiredPath

	switch {
	case remoteChanged && localChanged:
		switch e.conflictPolicy() {
		case conflictPolicyLocalWins:
			if err := e.Remote.ReplacePageBody(ctx, row.RowKey, rec.Body); err != nil {
				return recordUnchanged, fmt.Errorf("pushing body: %w", err)
			}

			if err := writeRecord(desiredPath, row.RowKey, suffix, runStart, rec.Body); err != nil {
				return recordUnchanged, err
			}
		default:
			body, err := e.Remote.FetchPageBody(ctx, row.RowKey)
			if err != nil {
				return recordUnchanged, fmt.Errorf("fetching body: %w", err)
			}

			if err := writeRecord(desiredPath, row.RowKey, suffix, runStart, body); err != nil {
				return recordUnchanged, err
			}
		}

		if renamed {
			os.Remove(existingPath)
		}

		e.Logger.Info("record conflict resolved", slog.String("row_key", row.RowKey))

		return recordUpdated, nil

	case remoteChanged:
		body, err := e.Remote.FetchPageBody(ctx, row.RowKey)
		if err != nil {
			return recordUnchanged, fmt.Errorf("fetching body: %w", err)
		}

		if err := writeRecord(desiredPath, row.RowKey, suffix, runStart, body); err != nil {
			return recordUnchanged, err
		}

		if renamed {
			os.Remove(existingPath)
		}

		return recordUpdated, nil

	case localChanged:
		if err := e.Remote.ReplacePageBody(ctx, row.RowKey, rec.Body); err != nil {
			return recordUnchanged, fmt.Errorf("pushing body: %w", err)
		}

		if err := writeRecord(desiredPath, row.RowKey, suffix, runStart, rec.Body); err != nil {
			return recordUnchanged, err
		}

		if renamed {
			os.Remove(existingPath)
		}

		return recordUpdated, nil

	case renamed:
		if err := writeRecord(desiredPath, row.RowKey, suffix, rec.LastSync, rec.Body); err != nil {
			return recordUnchanged, err
		}

		os.Remove(existingPath)

		return recordUpdated, nil

	default:
		return recordUnchanged, nil
	}
}

// indexExistingRecords scans a database folder's top-level .txt files and
// returns a rowKey -> filename map, letting SyncRecords recognize files
// whose in-memory RecordPath was lost across a process restart.
func indexExistingRecords(dir string) map[string]string {
	out := make(map[string]string)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		rec, err := recordfile.Parse(data)
		if err != nil || rec.RowKey == "" {
			continue
		}

		out[rec.RowKey] = entry.Name()
	}

	return out
}

// writeRecord writes the record file and pins its mtime to lastSync.
// os.WriteFile otherwise stamps the file with the wall-clock instant the
// write executes, which is always later than lastSync — comparing that
// mtime against the stamp on the next run would make every record look
// locally edited, re-pushing its body on every pass.
func writeRecord(path, rowKey string, suffix int, lastSync time.Time, body string) error {
	data := recordfile.Format(recordfile.Record{RowKey: rowKey, LastSync: lastSync, Suffix: suffix, Body: body})

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	if err := os.Chtimes(path, lastSync, lastSync); err != nil {
		return fmt.Errorf("setting record mtime: %w", err)
	}

	return nil
}

// archiveRecord moves an orphaned row's record file into the database's
// .archive/ subfolder, preserving its name (§4.5 orphan handling, §4.6
// "deleted remotely" case).
func (e *Engine) archiveRecord(folder LocalFolder, row *Row) error {
	if row.RecordPath == "" {
		return nil
	}

	src := filepath.Join(folder.AbsolutePath, row.RecordPath)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	dst := filepath.Join(folder.AbsolutePath, folder.ArchiveSubpath, row.RecordPath)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving record to archive: %w", err)
	}

	row.RecordPath = ""
	row.RowKey = ""

	return nil
}
