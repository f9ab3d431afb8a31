package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// Discover enumerates the databases this run should process: every remote
// database reachable by the configured integration, filtered by the
// allow/deny lists, registered in the RegistrySpreadsheet, and with
// historical duplicates consolidated (§4.2).
func (e *Engine) Discover(ctx context.Context) ([]RemoteDatabaseSchema, error) {
	schemas, err := e.Remote.Search(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery search: %v", ErrRemoteTransient, err)
	}

	regPath := registryPath(e.Config.RootPath, e.Config.Environment)

	registry, err := loadRegistry(regPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalIO, err)
	}

	now := e.Clock.Now()

	var out []RemoteDatabaseSchema

	for _, s := range schemas {
		if s.DataSource.IsZero() {
			e.Logger.Warn("skipping database with no resolvable data source", slog.String("database", s.ID.String()))
			continue
		}

		if !e.databaseAllowed(s.ID) {
			continue
		}

		registry[s.ID.String()] = registryRow{
			ID:          s.ID.String(),
			DisplayName: s.DisplayName,
			FolderPath:  existingFolderPath(registry, s.ID.String(), e.Config.RootPath, e.Config.Environment, s.DisplayName),
			LastSeen:    now,
			Environment: e.Config.Environment,
		}

		out = append(out, s)
	}

	repointed := consolidateDuplicates(registry)
	for _, id := range repointed {
		e.Logger.Info("consolidated duplicate registry entry", slog.String("database", id))
	}

	if err := saveRegistry(regPath, registry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalIO, err)
	}

	out = rotate(out, loadRotationPointer(rotationPath(e.Config.RootPath, e.Config.Environment)))

	return reorderWithAgentTasksSecond(out, e.Config.AgentTasksDatabaseID), nil
}

// rotate reorders schemas so the database identified by startID comes
// first, wrapping around. If startID is empty or not found, the original
// order is returned unchanged (§4.1 step 5: "fair order that persists
// across runs").
func rotate(schemas []RemoteDatabaseSchema, startID string) []RemoteDatabaseSchema {
	if startID == "" {
		return schemas
	}

	idx := -1

	for i, s := range schemas {
		if s.ID.String() == startID {
			idx = i
			break
		}
	}

	if idx <= 0 {
		return schemas
	}

	out := make([]RemoteDatabaseSchema, 0, len(schemas))
	out = append(out, schemas[idx:]...)
	out = append(out, schemas[:idx]...)

	return out
}

// AdvanceRotation persists the pointer for the next run: the database
// immediately following the last one actually started this run, so a
// budget-truncated run doesn't always starve the same tail of databases.
func (e *Engine) AdvanceRotation(processed []RemoteDatabaseSchema, lastStartedIndex int) error {
	if len(processed) == 0 {
		return nil
	}

	next := (lastStartedIndex + 1) % len(processed)
	id := processed[next].ID.String()

	return saveRotationPointer(rotationPath(e.Config.RootPath, e.Config.Environment), id)
}

func existingFolderPath(registry map[string]registryRow, id, root, environment, displayName string) string {
	if r, ok := registry[id]; ok && r.FolderPath != "" {
		return r.FolderPath
	}

	return filepath.Join(root, environment, "databases", normalizeFolderName(displayName))
}

// databaseAllowed applies Config.DatabaseAllowList/DatabaseDenyList (§6).
func (e *Engine) databaseAllowed(id sourceid.DatabaseID) bool {
	for _, denied := range e.Config.DatabaseDenyList {
		if denied == id.String() {
			return false
		}
	}

	if len(e.Config.DatabaseAllowList) == 0 {
		return true
	}

	for _, allowed := range e.Config.DatabaseAllowList {
		if allowed == id.String() {
			return true
		}
	}

	return false
}

// reorderWithAgentTasksSecond applies §4.1 step 5's priority override: the
// agent-tasks database, if present and discovered, is always processed
// second. All other databases keep their discovered (stable) order.
func reorderWithAgentTasksSecond(schemas []RemoteDatabaseSchema, agentTasksID string) []RemoteDatabaseSchema {
	if agentTasksID == "" || len(schemas) < 2 {
		return schemas
	}

	idx := -1

	for i, s := range schemas {
		if s.ID.String() == agentTasksID {
			idx = i
			break
		}
	}

	if idx <= 0 || idx == 1 {
		return schemas
	}

	out := make([]RemoteDatabaseSchema, 0, len(schemas))
	out = append(out, schemas[0], schemas[idx])

	for i, s := range schemas {
		if i == 0 || i == idx {
			continue
		}

		out = append(out, s)
	}

	return out
}
