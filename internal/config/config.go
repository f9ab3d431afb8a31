// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the sync engine. One config
// describes one environment: one remote credential, one local root, one
// conflict policy — the teacher's per-drive section TOML is flattened
// into a single-environment-per-file shape per this spec's single-Run
// entrypoint model.
package config

// Config is the top-level configuration structure, decoded directly from
// a flat TOML document (no section nesting beyond the ambient sub-configs).
type Config struct {
	CredentialHandle        string   `toml:"credential_handle"`
	RootPath                 string   `toml:"root_path"`
	Environment              string   `toml:"environment"`
	DatabaseAllowList        []string `toml:"database_allow_list"`
	DatabaseDenyList         []string `toml:"database_deny_list"`
	AllowSchemaDeletions     bool     `toml:"allow_schema_deletions"`
	ConflictPolicy           string   `toml:"conflict_policy"`
	MaxRunDuration           string   `toml:"max_run_duration"`
	LockWaitDuration         string   `toml:"lock_wait_duration"`
	RequireItemTypeColumn    bool     `toml:"require_item_type_column"`
	DeletionArchivesRecords  bool     `toml:"deletion_archives_records"`
	AgentTasksDatabaseID     string   `toml:"agent_tasks_database_id"`
	ExecutionDatabaseID      string   `toml:"execution_database_id"`
	ScriptName               string   `toml:"script_name"`
	ScriptVersion            string   `toml:"script_version"`
	ScriptID                 string   `toml:"script_id"`

	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// LoggingConfig controls execution-log output behavior (§4.9).
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogDir           string `toml:"log_dir"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// NetworkConfig controls the remote-store HTTP client.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// ConflictPolicy values for Config.ConflictPolicy.
const (
	ConflictPolicyRemoteWins = "remote_wins"
	ConflictPolicyLocalWins  = "local_wins"
)
