package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-resources/pkg/resources"
)

// NewMigrateCommand rewrites legacy /uploads/ locators to durable URLs
func NewMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Backfill legacy upload locators with durable store URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := loadComponents(ctx, cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			migrator := resources.NewMigrator(
				components.Repository,
				components.Store,
				components.Resolver,
				resources.WithDryRun(dryRun),
			)
			summary, err := migrator.Run(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without saving the tree")
	return cmd
}

// NewSeedCommand replaces the tree with the contents of a seed file
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Replace the resource tree from a JSON seed file",
		Long: `Replace the resource tree from a JSON seed file.

The file holds either a folder tree or the legacy
{notes, slides, recordings, external_links} document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer file.Close()

			ctx := cmd.Context()
			components, err := loadComponents(ctx, cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			root, err := resources.NewSeeder(components.Trees).Seed(ctx, file)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), resources.ComputeStats(root))
		},
	}
}

func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print file, folder and size totals for the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := loadComponents(ctx, cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			stats, err := components.Trees.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
