package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ofx-ingest/internal/store/sqlite"
)

var errWarehouseDisabled = errors.New("warehouse export is disabled; set warehouse.enabled and gcp.project_id")

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.cfg.Database.Path
			if err := sqlite.RunMigrations(path); err != nil {
				return err
			}
			version, dirty, err := sqlite.MigrationVersion(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s at schema version %d (dirty=%t)\n", path, version, dirty)
			return nil
		},
	}
}

func (c *cli) warehouseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warehouse",
		Short: "Manage the BigQuery export",
	}

	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create the dataset and tables if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Warehouse == nil {
				return errWarehouseDisabled
			}
			if err := a.Warehouse.EnsureTables(ctx); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Warehouse tables ready in %s.%s\n", c.cfg.GCP.ProjectID, c.cfg.Warehouse.Dataset)
			return nil
		},
	}

	count := &cobra.Command{
		Use:   "count <uploadId>",
		Short: "Count the transactions exported for an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Warehouse == nil {
				return errWarehouseDisabled
			}

			exported, err := a.Warehouse.CountExported(ctx, args[0])
			if err != nil {
				return err
			}
			local, err := a.Store.CountTransactions(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s: %d exported, %d stored\n", args[0], exported, local)
			return nil
		},
	}

	cmd.AddCommand(ensure, count)
	return cmd
}
