package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/familyq/internal/store"
)

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the ordered question catalog",
	}
	cmd.AddCommand(newCatalogListCommand(opts))
	cmd.AddCommand(newCatalogAddCommand(opts))
	cmd.AddCommand(newCatalogDeleteCommand(opts))
	cmd.AddCommand(newCatalogImportCommand(opts))
	return cmd
}

func newCatalogListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the catalog in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			questions, err := store.NewCatalogStore(db).List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range questions {
				fmt.Fprintf(out, "%3d  %s  (id %d)\n", q.OrderIndex, q.Text, q.ID)
			}
			return nil
		},
	}
}

func newCatalogAddCommand(opts *rootOptions) *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a question, appending unless --position is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var pos *int
			if cmd.Flags().Changed("position") {
				pos = &position
			}
			q, err := store.NewCatalogStore(db).Insert(cmd.Context(), args[0], pos)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added question %d at position %d\n", q.ID, q.OrderIndex)
			return nil
		},
	}
	cmd.Flags().IntVar(&position, "position", 0, "1-based position; later questions shift down")
	return cmd
}

func newCatalogDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a question no family has been assigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid question id %q", args[0])
			}

			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.NewCatalogStore(db).DeleteIfUnused(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted question %d\n", id)
			return nil
		},
	}
}

func newCatalogImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Append the questions listed in a YAML file",
		Long: `Append questions to the end of the catalog. The file is either a YAML
list of strings or a mapping with a "questions" list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read catalog file: %w", err)
			}
			texts, err := parseCatalogYAML(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			imported, err := store.NewCatalogStore(db).Import(cmd.Context(), texts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions\n", len(imported))
			return nil
		},
	}
}

type catalogFile struct {
	Questions []string `yaml:"questions"`
}

func parseCatalogYAML(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, errors.New("file is empty")
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var texts []string
		if err := doc.Decode(&texts); err != nil {
			return nil, err
		}
		return texts, nil
	case yaml.MappingNode:
		var f catalogFile
		if err := doc.Decode(&f); err != nil {
			return nil, err
		}
		if len(f.Questions) == 0 {
			return nil, errors.New(`no "questions" list found`)
		}
		return f.Questions, nil
	default:
		return nil, errors.New("expected a list of questions")
	}
}
