package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-resources/pkg/resources/config"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resourcectl",
		Short: "Maintenance commands for the resource tree",
		Long: `Maintenance commands for the resource tree.

Configuration is read from the environment (DATABASE_URL, STORAGE_BACKEND,
AWS_S3_*); flags override it.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("database", "", "database URL (memory, postgresql://..., badger:///path)")
	rootCmd.PersistentFlags().String("staging-dir", "", "staging directory for uploads")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewSeedCommand())
	rootCmd.AddCommand(NewStatsCommand())

	return rootCmd
}

// loadComponents builds the resource components from env and flag overrides
func loadComponents(ctx context.Context, cmd *cobra.Command) (*config.Components, error) {
	opts := []config.Option{config.WithEnv()}
	if database, _ := cmd.Flags().GetString("database"); database != "" {
		opts = append(opts, config.WithDatabase(database))
	}
	if dir, _ := cmd.Flags().GetString("staging-dir"); dir != "" {
		opts = append(opts, config.WithStagingDir(dir))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	return cfg.Build(ctx, nil, logger)
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
