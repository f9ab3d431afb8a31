package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowkeeper/dbsync/internal/config"
	"github.com/rowkeeper/dbsync/internal/credential"
	"github.com/rowkeeper/dbsync/internal/engine"
	"github.com/rowkeeper/dbsync/internal/notion"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass: discover databases and reconcile them against the local content store",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadAppConfig()
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	handle, err := credential.Load(cfg.CredentialHandle)
	if err != nil {
		return fmt.Errorf("loading credential: %w", err)
	}

	if handle.Secret == "" {
		return fmt.Errorf("no credential found at %s; see the config's credential_handle path", cfg.CredentialHandle)
	}

	client := notion.NewClient(handle.Secret, logger)

	var execClient engine.ExecutionPageClient
	if cfg.ExecutionDatabaseID != "" {
		execClient = notion.NewExecutionPages(client, cfg.ExecutionDatabaseID)
	}

	e := engine.New(client, cfg, logger, engine.SystemClock)

	ctx := context.Background()

	result, err := e.Run(ctx, engine.NoopScheduler{}, execClient)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	printRunSummary(result)

	for _, d := range result.Databases {
		if d.Status == engine.StatusFailed {
			return fmt.Errorf("one or more databases failed this run")
		}
	}

	return nil
}

func printRunSummary(result engine.RunResult) {
	fmt.Printf("Run complete in %s\n", result.Elapsed.Round(1e6))

	for _, d := range result.Databases {
		fmt.Printf("  %-40s %-8s export[read=%d added=%d updated=%d] upsert[created=%d updated=%d conflicted=%d]\n",
			d.Database, d.Status, d.Export.Read, d.Export.Added, d.Export.Updated,
			d.Upsert.Created, d.Upsert.Updated, d.Upsert.Conflicted)
	}
}
