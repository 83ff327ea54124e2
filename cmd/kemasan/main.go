package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vityasyyy/dalam-kemasan/internal/app"
	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
)

var (
	configPath string
	owner      string
	asJSON     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kemasan: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kemasan",
		Short: "Browse and manage the drive from the terminal",
		Long: `kemasan opens the configured snapshot backend, applies one command to the drive
and saves the result. Views print a table unless --json is given.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults to $KEMASAN_CONFIG)")
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "acting owner id (defaults to the configured owner)")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print views as JSON")
	cmd.AddCommand(
		newChildrenCmd(),
		newRecentCmd(),
		newSharedCmd(),
		newStarredCmd(),
		newTrashCmd(),
		newCreateCmd(),
		newRenameCmd(),
		newMoveCmd(),
		newFlagCmd("star", "Star an entity", "unstar the entity instead", setStarred),
		newFlagCmd("share", "Share an entity", "stop sharing the entity instead", setShared),
		newOpenCmd(),
		newRemoveCmd(),
		newRestoreCmd(),
		newPurgeCmd(),
		newEmptyTrashCmd(),
		newRestoreAllCmd(),
		newSweepCmd(),
	)
	return cmd
}

// withDrive opens the drive for one command. When mutate is set the state is
// saved afterwards, even if fn failed part way through a batch.
func withDrive(cmd *cobra.Command, mutate bool, fn func(ctx context.Context, d *app.Drive) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	if owner != "" {
		cfg.DefaultOwner = owner
	}

	ctx := cmd.Context()
	d, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	before := d.Store.Revision()
	runErr := fn(ctx, d)
	if mutate && d.Store.Revision() != before {
		if err := d.Save(ctx); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	return runErr
}
