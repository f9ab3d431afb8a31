package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gofrs/flock"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, lock state, and registered databases",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadAppConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Root:          %s\n", cfg.RootPath)
	fmt.Printf("Environment:   %s\n", cfg.Environment)
	fmt.Printf("Conflict policy: %s\n", cfg.ConflictPolicy)

	lockPath := filepath.Join(cfg.RootPath, cfg.Environment, ".lock")
	fmt.Printf("Lock:          %s\n", lockState(lockPath))

	regPath := filepath.Join(cfg.RootPath, cfg.Environment, "registry.xlsx")
	if _, err := os.Stat(regPath); err == nil {
		fmt.Printf("Registry:      %s\n", regPath)
	} else {
		fmt.Println("Registry:      (not created yet — no run has completed)")
	}

	databasesDir := filepath.Join(cfg.RootPath, cfg.Environment, "databases")

	entries, err := os.ReadDir(databasesDir)
	if err != nil {
		fmt.Println("Databases:     (none yet)")
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	fmt.Printf("Databases (%d):\n", len(names))

	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}

	return nil
}

// lockState reports whether another process currently holds the run lock,
// without blocking (a non-blocking TryLock probe, released immediately).
func lockState(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "free (no run has started yet)"
	}

	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}

	if !locked {
		return "held by another process"
	}

	fl.Unlock()

	return "free"
}
