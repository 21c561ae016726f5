package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jacentio/canopy/store"
)

func (a *app) findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <kind> <id>",
		Short: "Fetch one entity by id",
		Long: `Find fetches a single entity by kind and id.

Example:
  canopy find Sample 42`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}

			e, ok, err := a.store.Kind(args[0]).Find(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("find %s/%d: %w", args[0], id, err)
			}
			if !ok {
				return fmt.Errorf("%s/%d not found", args[0], id)
			}
			return writeJSON(cmd.OutOrStdout(), toJSON(e))
		},
	}
}

func (a *app) allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all <kind>",
		Short: "List every entity of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.store.Kind(args[0]).All(cmd.Context())
			if err != nil {
				return fmt.Errorf("list %s: %w", args[0], err)
			}
			return writeEntities(cmd.OutOrStdout(), entities)
		},
	}
}

func (a *app) whereCmd() *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "where <kind> <name=value>...",
		Short: "List entities whose properties equal the given values",
		Long: `Where lists the entities of a kind whose properties all equal the
given values. Values are typed the same way as for put, and equality is
exact: a=1 does not match a property holding the string "1".

Example:
  canopy where Sample a=1 name=widget
  canopy where Sample --string code=007`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseAssignments(args[1:], asString)
			if err != nil {
				return err
			}

			var filters []store.Filter
			for _, name := range slices.Sorted(maps.Keys(props)) {
				filters = append(filters, store.Eq(name, props[name]))
			}

			entities, err := a.store.Kind(args[0]).Where(cmd.Context(), filters...)
			if err != nil {
				return fmt.Errorf("query %s: %w", args[0], err)
			}
			return writeEntities(cmd.OutOrStdout(), entities)
		},
	}

	cmd.Flags().BoolVar(&asString, "string", false, "treat every value as a string")
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	var asString bool
	var id int64

	cmd := &cobra.Command{
		Use:   "put <kind> [name=value]...",
		Short: "Create or replace an entity",
		Long: `Put writes an entity. Without --id a new entity is created and
its assigned id printed; with --id the entity stored under that id is
replaced.

Example:
  canopy put Sample a=1 name=widget
  canopy put Sample --id 42 a=2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseAssignments(args[1:], asString)
			if err != nil {
				return err
			}

			repo := a.store.Kind(args[0])
			if id == 0 {
				e, err := repo.Create(cmd.Context(), props)
				if err != nil {
					return fmt.Errorf("create %s: %w", args[0], err)
				}
				return writeJSON(cmd.OutOrStdout(), toJSON(e))
			}

			if id < 0 {
				return fmt.Errorf("invalid id %d: must be a positive integer", id)
			}
			e := repo.New(props)
			e.SetID(id)
			ok, err := repo.Save(cmd.Context(), e)
			if err != nil {
				return fmt.Errorf("save %s/%d: %w", args[0], id, err)
			}
			if !ok {
				return fmt.Errorf("save %s/%d: %w", args[0], id, store.ErrInvalidEntity)
			}
			return writeJSON(cmd.OutOrStdout(), toJSON(e))
		},
	}

	cmd.Flags().BoolVar(&asString, "string", false, "treat every value as a string")
	cmd.Flags().Int64Var(&id, "id", 0, "id of the entity to replace")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete an entity by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}

			repo := a.store.Kind(args[0])
			e, ok, err := repo.Find(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("find %s/%d: %w", args[0], id, err)
			}
			if !ok {
				return fmt.Errorf("%s/%d not found", args[0], id)
			}
			if err := repo.Destroy(cmd.Context(), e); err != nil {
				return fmt.Errorf("delete %s/%d: %w", args[0], id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%d\n", args[0], id)
			return nil
		},
	}
}
