package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
)

func newFamilyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "family",
		Short: "Manage families and their rosters",
	}
	cmd.AddCommand(newFamilyCreateCommand(opts))
	cmd.AddCommand(newFamilyListCommand(opts))
	cmd.AddCommand(newFamilyAddMemberCommand(opts))
	cmd.AddCommand(newFamilyNewMemberCommand(opts))
	cmd.AddCommand(newFamilyJoinCommand(opts))
	cmd.AddCommand(newFamilyRemoveMemberCommand(opts))
	cmd.AddCommand(newFamilyStartCommand(opts))
	cmd.AddCommand(newFamilyShowCommand(opts))
	return cmd
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func parseMember(role string, birthYear int) (model.Role, error) {
	r := model.Role(strings.ToLower(role))
	if !r.Valid() {
		return "", fmt.Errorf("role must be father, mother, or child")
	}
	if birthYear < 1900 || birthYear > 2100 {
		return "", fmt.Errorf("birth year %d out of range", birthYear)
	}
	return r, nil
}

// withFamilies opens the database for the duration of fn.
func withFamilies(opts *rootOptions, fn func(*store.FamilyStore) error) error {
	db, err := opts.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.NewFamilyStore(db))
}

func newFamilyCreateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("family name is required")
			}
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				fam, err := fs.Create(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created family %d\n", fam.ID)
				return nil
			})
		},
	}
}

func newFamilyListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				families, err := fs.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(families) == 0 {
					fmt.Fprintln(out, "no families")
					return nil
				}
				for _, f := range families {
					fmt.Fprintf(out, "%d  %-20s started: %t\n", f.ID, f.Name, f.QuestionsStarted)
				}
				return nil
			})
		},
	}
}

func newFamilyAddMemberCommand(opts *rootOptions) *cobra.Command {
	var (
		role      string
		birthYear int
	)
	cmd := &cobra.Command{
		Use:   "add-member <family-id> <name>",
		Short: "Add a member to a family",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			familyID, err := parseID("family", args[0])
			if err != nil {
				return err
			}
			r, err := parseMember(role, birthYear)
			if err != nil {
				return err
			}

			return withFamilies(opts, func(fs *store.FamilyStore) error {
				fam, err := fs.GetByID(cmd.Context(), familyID)
				if err != nil {
					return err
				}
				if fam == nil {
					return fmt.Errorf("family %d not found", familyID)
				}
				m, err := fs.AddMember(cmd.Context(), familyID, strings.TrimSpace(args[1]), r, birthYear)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added member %d to family %d\n", m.ID, familyID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(model.RoleChild), "father, mother, or child")
	cmd.Flags().IntVar(&birthYear, "birth-year", 0, "year of birth")
	cmd.MarkFlagRequired("birth-year")
	return cmd
}

func newFamilyNewMemberCommand(opts *rootOptions) *cobra.Command {
	var (
		role      string
		birthYear int
	)
	cmd := &cobra.Command{
		Use:   "new-member <name>",
		Short: "Create a member who has not joined a family yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseMember(role, birthYear)
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("member name is required")
			}
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				m, err := fs.CreateMember(cmd.Context(), name, r, birthYear)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created member %d\n", m.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(model.RoleChild), "father, mother, or child")
	cmd.Flags().IntVar(&birthYear, "birth-year", 0, "year of birth")
	cmd.MarkFlagRequired("birth-year")
	return cmd
}

func newFamilyJoinCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <member-id> <family-id>",
		Short: "Put an existing member on a family's roster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			familyID, err := parseID("family", args[1])
			if err != nil {
				return err
			}
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				ctx := cmd.Context()
				m, err := fs.GetMember(ctx, memberID)
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("member %d not found", memberID)
				}
				fam, err := fs.GetByID(ctx, familyID)
				if err != nil {
					return err
				}
				if fam == nil {
					return fmt.Errorf("family %d not found", familyID)
				}
				if err := fs.AssignMember(ctx, memberID, familyID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "member %d joined family %d\n", memberID, familyID)
				return nil
			})
		},
	}
}

func newFamilyRemoveMemberCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-member <member-id>",
		Short: "Remove a member from their family; past answers are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				if err := fs.RemoveMember(cmd.Context(), memberID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed member %d\n", memberID)
				return nil
			})
		},
	}
}

func newFamilyStartCommand(opts *rootOptions) *cobra.Command {
	var stop bool
	cmd := &cobra.Command{
		Use:   "start <family-id>",
		Short: "Start (or with --stop, pause) a family's daily questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			familyID, err := parseID("family", args[0])
			if err != nil {
				return err
			}
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				if err := fs.SetQuestionsStarted(cmd.Context(), familyID, !stop); err != nil {
					return err
				}
				state := "started"
				if stop {
					state = "paused"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "family %d %s\n", familyID, state)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&stop, "stop", false, "pause instead of start")
	return cmd
}

func newFamilyShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <family-id>",
		Short: "Print a family and its roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			familyID, err := parseID("family", args[0])
			if err != nil {
				return err
			}
			return withFamilies(opts, func(fs *store.FamilyStore) error {
				fam, err := fs.GetByID(cmd.Context(), familyID)
				if err != nil {
					return err
				}
				if fam == nil {
					return fmt.Errorf("family %d not found", familyID)
				}
				members, err := fs.Members(cmd.Context(), familyID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "family %d: %s (started: %t)\n", fam.ID, fam.Name, fam.QuestionsStarted)
				for _, m := range members {
					fmt.Fprintf(out, "  %d  %-12s %-6s %d\n", m.ID, m.Name, m.Role, m.BirthYear)
				}
				return nil
			})
		},
	}
}
