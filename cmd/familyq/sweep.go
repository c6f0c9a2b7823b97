package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dukerupert/familyq/internal/question"
	"github.com/dukerupert/familyq/internal/scheduler"
	"github.com/dukerupert/familyq/internal/store"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Advance every eligible family once, as the midnight scheduler does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			assigner := question.NewAssigner(db, question.Options{
				Location:   opts.cfg.Location,
				MinMembers: opts.cfg.MinMembers,
				Logger:     opts.logger.With("component", "question"),
			})
			sched := scheduler.New(assigner, store.NewFamilyStore(db), store.NewCatalogStore(db), scheduler.Config{
				Location:    opts.cfg.Location,
				MinMembers:  opts.cfg.MinMembers,
				Concurrency: opts.cfg.SchedulerConcurrency,
				Logger:      opts.logger.With("component", "scheduler"),
			})

			report := sched.RunOnce(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(report)
		},
	}
}
