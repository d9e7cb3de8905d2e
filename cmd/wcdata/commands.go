package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/config"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/resolver"
)

func resolverFor(name string) (*resolver.Resolver, error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Resolver(name)
}

// --- get ---

var getCmd = &cobra.Command{
	Use:   "get <resource> <id>",
	Short: "Fetch one item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cache.NewID(args[1])
		if err != nil {
			return err
		}
		r, err := resolverFor(args[0])
		if err != nil {
			return err
		}
		item, err := r.GetItem(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list <resource> [key=value ...]",
	Short: "Fetch the items matching a query",
	Long: `Fetch the items matching a query.

Examples:
  wcdata list products status=publish per_page=20
  wcdata list orders include[]=12 include[]=15`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		r, err := resolverFor(args[0])
		if err != nil {
			return err
		}
		items, err := r.GetItems(cmd.Context(), q)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), items); err != nil {
			return err
		}
		if total, ok := cache.GetItemsTotalCount(r.Store().State(), q); ok {
			printStatus("Total", "%d", total)
		}
		return nil
	},
}

// --- create / update / delete ---

var createCmd = &cobra.Command{
	Use:   "create <resource> key=value...",
	Short: "Create an item",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		r, err := resolverFor(args[0])
		if err != nil {
			return err
		}
		item, err := r.CreateItem(cmd.Context(), fields)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <resource> <id> key=value...",
	Short: "Update an item",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cache.NewID(args[1])
		if err != nil {
			return err
		}
		fields, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}
		r, err := resolverFor(args[0])
		if err != nil {
			return err
		}
		item, err := r.UpdateItem(cmd.Context(), id, fields)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <resource> <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		id, err := cache.NewID(args[1])
		if err != nil {
			return err
		}
		r, err := resolverFor(args[0])
		if err != nil {
			return err
		}
		if _, err := r.DeleteItem(cmd.Context(), id, force); err != nil {
			return err
		}
		printSuccess("Deleted %s %s", args[0], id)
		return nil
	},
}

func init() {
	deleteCmd.Flags().Bool("force", false, "delete permanently (required by resources without trash)")
}

// --- key ---

var keyCmd = &cobra.Command{
	Use:   "key [key=value ...]",
	Short: "Print the cache key of a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseAssignments(args)
		if err != nil {
			return err
		}
		name, err := querykey.Encode(q)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)

		if base, _ := cmd.Flags().GetString("path"); base != "" {
			p, err := querykey.Path(base, q)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	keyCmd.Flags().String("path", "", "also print the request path under this collection, e.g. /wc/v3/products")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
