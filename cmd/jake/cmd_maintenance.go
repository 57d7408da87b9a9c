package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zaporter/jake/internal/store"
)

var backupDir string

// migrateCmd rewrites stored conversations in the current format
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite every stored conversation in the current blob format",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

// backupCmd snapshots the database
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a timestamped copy of the database",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "Backup directory (default store.backup_dir)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kv, convs, err := openStore(ctx, true)
	if err != nil {
		return err
	}
	defer kv.Close()

	n, err := convs.Migrate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d conversation(s)\n", n)
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	dir := backupDir
	if dir == "" {
		dir = cfg.Store.BackupDir
	}
	if dir == "" {
		return fmt.Errorf("no backup directory: set --dir or store.backup_dir")
	}

	ctx := cmd.Context()
	kv, _, err := openStore(ctx, false)
	if err != nil {
		return err
	}
	defer kv.Close()

	dest, err := store.TimestampedBackup(ctx, kv, dir, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", dest)
	return nil
}
