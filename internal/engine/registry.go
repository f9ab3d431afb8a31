package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const registrySheet = "Registry"

var registryHeader = []string{"id", "displayName", "folderPath", "lastSeen", "environment"}

// registryRow is one row of the RegistrySpreadsheet (§3, §4.7).
type registryRow struct {
	ID          string
	DisplayName string
	FolderPath  string
	LastSeen    time.Time
	Environment string
}

// registryPath returns the well-known path of the registry workbook for an
// environment's root (§6 layout).
func registryPath(root, environment string) string {
	return filepath.Join(root, environment, "registry.xlsx")
}

// rotationPath is a small sidecar file recording the fair-rotation pointer
// (§4.1 step 5: "rotation pointer stored in the registry"). It is kept
// alongside the workbook rather than inside a sheet since it tracks a
// single scalar, not tabular registry data.
func rotationPath(root, environment string) string {
	return filepath.Join(root, environment, ".rotation")
}

// loadRotationPointer returns the id of the database that should start
// this run's round-robin, or "" if none is recorded yet.
func loadRotationPointer(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// saveRotationPointer persists the database id that should start the next
// run's round-robin.
func saveRotationPointer(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating rotation directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id), 0o644); err != nil {
		return fmt.Errorf("writing rotation pointer: %w", err)
	}

	return os.Rename(tmp, path)
}

// loadRegistry reads the registry workbook, creating an empty in-memory one
// if the file does not yet exist (§3: "exactly one registry per
// environment").
func loadRegistry(path string) (map[string]registryRow, error) {
	rows := make(map[string]registryRow)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return rows, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening registry workbook: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(registrySheet)
	if err != nil {
		return nil, fmt.Errorf("reading registry sheet: %w", err)
	}

	for i, rec := range records {
		if i == 0 || len(rec) < 5 {
			continue
		}

		lastSeen, _ := time.Parse(time.RFC3339, rec[3])

		rows[rec[0]] = registryRow{
			ID:          rec[0],
			DisplayName: rec[1],
			FolderPath:  rec[2],
			LastSeen:    lastSeen,
			Environment: rec[4],
		}
	}

	return rows, nil
}

// saveRegistry writes the registry workbook atomically (temp file + rename),
// matching the credential package's atomic-write discipline. Rows are
// written in id order for a stable diff across runs.
func saveRegistry(path string, rows map[string]registryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registrySheet); err != nil {
		return fmt.Errorf("naming registry sheet: %w", err)
	}

	for col, h := range registryHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(registrySheet, cell, h); err != nil {
			return fmt.Errorf("writing registry header: %w", err)
		}
	}

	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}

	sortStrings(ids)

	for i, id := range ids {
		r := rows[id]
		rowNum := i + 2

		values := []any{r.ID, r.DisplayName, r.FolderPath, r.LastSeen.UTC().Format(time.RFC3339), r.Environment}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			if err := f.SetCellValue(registrySheet, cell, v); err != nil {
				return fmt.Errorf("writing registry row %s: %w", id, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("writing registry workbook: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing registry workbook: %w", err)
	}

	return nil
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

var folderNamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// normalizeFolderName derives a deterministic, filesystem-safe folder name
// from a database's display name (§4.7: "deterministic normalization ...
// so that renames in the remote are detected and propagated").
func normalizeFolderName(displayName string) string {
	s := strings.TrimSpace(displayName)
	s = folderNamePattern.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")

	if s == "" {
		s = "database"
	}

	return s
}

// EnsureFolder materializes the on-disk folder for a database, renaming an
// existing folder in place if the display name changed since last seen
// (§4.7: "rename = move; never delete-then-create").
func (e *Engine) EnsureFolder(root, environment string, db RemoteDatabase, registry map[string]registryRow) (LocalFolder, error) {
	databasesDir := filepath.Join(root, environment, "databases")

	name := normalizeFolderName(db.DisplayName)
	target := filepath.Join(databasesDir, name)

	if prior, ok := registry[db.ID.String()]; ok && prior.FolderPath != "" && prior.FolderPath != target {
		if _, err := os.Stat(prior.FolderPath); err == nil {
			if err := os.MkdirAll(databasesDir, 0o755); err != nil {
				return LocalFolder{}, fmt.Errorf("creating databases directory: %w", err)
			}

			if err := os.Rename(prior.FolderPath, target); err != nil {
				return LocalFolder{}, fmt.Errorf("renaming folder for %s: %w", db.ID, err)
			}
		}
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return LocalFolder{}, fmt.Errorf("creating folder for %s: %w", db.ID, err)
	}

	folder := LocalFolder{AbsolutePath: target, Name: name, ArchiveSubpath: ".archive"}

	if err := e.EnsureArchive(folder); err != nil {
		return folder, err
	}

	return folder, nil
}

// EnsureArchive verifies (or creates) a folder's .archive/ subfolder.
// Failure here is never silent (§4.7): callers must mark the database
// failed for this run when this returns an error.
func (e *Engine) EnsureArchive(folder LocalFolder) error {
	path := filepath.Join(folder.AbsolutePath, folder.ArchiveSubpath)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: creating archive subfolder for %s: %v", ErrLocalIO, folder.Name, err)
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: archive subfolder for %s is not a directory", ErrLocalIO, folder.Name)
	}

	return nil
}

// consolidateDuplicates implements §4.2 step 4: when two registry rows
// share a display name but differ in id, keep the one whose folder has
// content, move the other's files into the survivor, and repoint the
// duplicate's registry row.
func consolidateDuplicates(registry map[string]registryRow) []string {
	byName := make(map[string][]string)
	for id, r := range registry {
		byName[r.DisplayName] = append(byName[r.DisplayName], id)
	}

	var repointed []string

	for _, ids := range byName {
		if len(ids) < 2 {
			continue
		}

		sortStrings(ids)

		survivor := ids[0]
		for _, id := range ids {
			if folderHasContent(registry[id].FolderPath) {
				survivor = id
				break
			}
		}

		survivorRow := registry[survivor]

		for _, id := range ids {
			if id == survivor {
				continue
			}

			dup := registry[id]

			if err := mergeFolderInto(dup.FolderPath, survivorRow.FolderPath); err == nil {
				dup.FolderPath = survivorRow.FolderPath
				registry[id] = dup
				repointed = append(repointed, id)
			}
		}
	}

	return repointed
}

func folderHasContent(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

func mergeFolderInto(src, dst string) error {
	if src == "" || dst == "" || src == dst {
		return nil
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return nil // nothing to merge
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		if _, err := os.Stat(to); err == nil {
			continue // survivor already has a file with this name; leave the duplicate's copy behind
		}

		if err := os.Rename(from, to); err != nil {
			return err
		}
	}

	return os.Remove(src)
}
