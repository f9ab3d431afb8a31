package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rowkeeper/dbsync/internal/csvtable"
)

// ArchiveTable writes a timestamped snapshot of a database's canonical
// table into its .archive/ subfolder (§4.1 step 6, §6 on-disk layout:
// ".archive/ <timestamped snapshots and archived record files>"). This
// runs after record sync so a snapshot always reflects the run's final
// state, including any rows archived this run.
func (e *Engine) ArchiveTable(folder LocalFolder, table *CanonicalTable, runStart time.Time) error {
	archiveDir := filepath.Join(folder.AbsolutePath, folder.ArchiveSubpath)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating archive directory: %v", ErrLocalIO, err)
	}

	name := fmt.Sprintf("table-%s.csv", runStart.UTC().Format("20060102T150405Z"))
	path := filepath.Join(archiveDir, name)

	if err := csvtable.WriteFile(path, table); err != nil {
		return fmt.Errorf("%w: writing table snapshot: %v", ErrLocalIO, err)
	}

	return nil
}
