package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/familyq/internal/middleware"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/push"
	"github.com/dukerupert/familyq/internal/question"
)

func newAdminCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative helpers",
	}
	cmd.AddCommand(newHashTokenCommand())
	cmd.AddCommand(newVAPIDKeysCommand())
	cmd.AddCommand(newForceCommand(opts, "refresh", "Discard a family's open question and its answers, then assign the next",
		(*question.Assigner).Refresh))
	cmd.AddCommand(newForceCommand(opts, "skip", "Close a family's open question without an insight, then assign the next",
		(*question.Assigner).Skip))
	return cmd
}

func newHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash to use as admin.token_hash",
		Long:  "Hash an admin bearer token. Without an argument the token is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return errors.New("token must not be empty")
			}

			hash, err := middleware.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVAPIDKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "FAMILYQ_PUSH_VAPID_PUBLIC_KEY=%s\n", pub)
			fmt.Fprintf(out, "FAMILYQ_PUSH_VAPID_PRIVATE_KEY=%s\n", priv)
			return nil
		},
	}
}

type forceFunc func(*question.Assigner, context.Context, int64) (*model.FamilyQuestion, error)

func newForceCommand(opts *rootOptions, use, short string, fn forceFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <family-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			familyID, err := parseID("family", args[0])
			if err != nil {
				return err
			}

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
			fq, err := fn(assigner, cmd.Context(), familyID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "family %d now on round %d question %d (entry %d)\n",
				familyID, fq.Round, fq.SequenceNumber, fq.ID)
			return nil
		},
	}
}
