package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/storage"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the database to a file",
	Long: `Write a consistent copy of the database to a file. The server must be
stopped first; the database cannot be opened while it is running.

The copy is a regular database file: place it in a data directory as
hazardfeed.db to restore it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		out, _ := cmd.Flags().GetString("out")

		if _, err := os.Stat(filepath.Join(dataDir, storage.DBFile)); err != nil {
			return fmt.Errorf("database not found in %s: %w", dataDir, err)
		}
		if out == "" {
			out = filepath.Join(dataDir, storage.DBFile+".backup")
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		n, err := store.Backup(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("✓ Backup written to %s (%d bytes)\n", out, n)
		return nil
	},
}

func init() {
	backupCmd.Flags().String("data-dir", envOr("DATA_DIR", "./data"), "Data directory")
	backupCmd.Flags().StringP("out", "o", "", "Backup file (default: <data-dir>/hazardfeed.db.backup)")
	rootCmd.AddCommand(backupCmd)
}
