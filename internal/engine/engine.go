package engine

import (
	"log/slog"

	"github.com/rowkeeper/dbsync/internal/config"
	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// Engine holds everything threaded through a run: the remote client, the
// config, the logger, the clock, and the per-run caches (§4.8). One value,
// passed by reference — replaces the source's process-wide singletons
// (Design Note 2).
type Engine struct {
	Remote RemoteClient
	Config *config.Config
	Logger *slog.Logger
	Clock  Clock

	caches runCaches
}

// runCaches are invalidated at the start of every run and on any schema
// change (§4.8).
type runCaches struct {
	dataSourceByDatabase map[sourceid.DatabaseID]sourceid.DataSourceID
	schemaByDatabase     map[sourceid.DatabaseID][]Column
	columnMatches        map[string]matchResult
	remoteByRowKey       map[string]RemotePage
}

func newRunCaches() runCaches {
	return runCaches{
		dataSourceByDatabase: make(map[sourceid.DatabaseID]sourceid.DataSourceID),
		schemaByDatabase:     make(map[sourceid.DatabaseID][]Column),
		columnMatches:        make(map[string]matchResult),
		remoteByRowKey:       make(map[string]RemotePage),
	}
}

// New builds an Engine. logger defaults to slog.Default(); clock defaults
// to SystemClock.
func New(remote RemoteClient, cfg *config.Config, logger *slog.Logger, clock Clock) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if clock == nil {
		clock = SystemClock
	}

	return &Engine{
		Remote: remote,
		Config: cfg,
		Logger: logger,
		Clock:  clock,
		caches: newRunCaches(),
	}
}

// resetCaches is called at the start of every Run (§4.8: "invalidated at
// start and at any schema change").
func (e *Engine) resetCaches() {
	e.caches = newRunCaches()
}

// invalidateSchemaCache drops the cached schema entry for one database and
// every cached column-match resolution, forcing the next lookup to
// refetch. The data-source cache entry is kept. Called whenever Schema
// Sync applies a diff.
func (e *Engine) invalidateSchemaCache(id sourceid.DatabaseID) {
	delete(e.caches.schemaByDatabase, id)
	e.caches.columnMatches = make(map[string]matchResult)
}
