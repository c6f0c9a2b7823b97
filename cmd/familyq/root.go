package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/familyq/internal/config"
	"github.com/dukerupert/familyq/internal/database"
	"github.com/dukerupert/familyq/internal/logging"
)

// rootOptions holds global flags and the state loaded before a command runs.
type rootOptions struct {
	configFile string
	dbPath     string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCommand creates the familyq command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "familyq",
		Short: "familyq serves one shared question a day to each family",
		Long: `familyq assigns each family a question from an ordered catalog every day,
collects every member's answer, and once enough members have answered
attaches an insight comparing their views.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides db_path)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newFamilyCommand(opts))
	cmd.AddCommand(newAdminCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	v, err := config.NewViper(o.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("db_path", flags.Lookup("db")); err != nil {
		return fmt.Errorf("bind db flag: %w", err)
	}
	if err := v.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		return fmt.Errorf("bind log-level flag: %w", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg
	o.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return nil
}

func (o *rootOptions) openDB() (*sql.DB, error) {
	db, err := database.Open(o.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", o.cfg.DBPath, err)
	}
	return db, nil
}
