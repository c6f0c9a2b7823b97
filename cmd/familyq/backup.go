package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/familyq/internal/backup"
)

func newBackupCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted database backups in S3-compatible storage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Snapshot, encrypt and upload the database, then prune old backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(opts, func(m *backup.Manager) error {
				res, err := m.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", res.Key, res.Size)

				deleted, err := m.Prune(cmd.Context(), opts.cfg.BackupKeep)
				if err != nil {
					return err
				}
				for _, key := range deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", key)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored backups, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(opts, func(m *backup.Manager) error {
				keys, err := m.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restore <key> <path>",
		Short: "Download and decrypt a backup into a new database file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(opts, func(m *backup.Manager) error {
				if err := m.Restore(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], args[1])
				return nil
			})
		},
	})
	return cmd
}

func withBackup(opts *rootOptions, fn func(*backup.Manager) error) error {
	if !opts.cfg.Backup.Enabled() {
		return fmt.Errorf("%w: set backup.s3.bucket, credentials and backup.passphrase", backup.ErrNotConfigured)
	}
	db, err := opts.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := backup.NewManager(opts.cfg.Backup, db, opts.logger.With("component", "backup"))
	if err != nil {
		return err
	}
	return fn(m)
}
