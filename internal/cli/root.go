package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"guardian-recovery/internal/app"
	"guardian-recovery/internal/config"
)

// RootOptions holds global flags and the store opener shared by all commands.
type RootOptions struct {
	Format string

	openStore  func(ctx context.Context, cfg *config.Config) (*app.Store, error)
	loadConfig func() (*config.Config, error)
}

// ValidFormats lists the accepted values of --format.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the recoveryctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		openStore:  app.OpenStore,
		loadConfig: loadStoreConfig,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recoveryctl",
		Short: "Operate the guardian recovery state store",
		Long: `recoveryctl inspects and prepares the state store used by the recovery server.

It reads the same environment (or .env file) as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newGuardiansCommand(opts))

	return cmd
}

func loadStoreConfig() (*config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withStore loads the configuration, opens the store and hands it to fn.
func (o *RootOptions) withStore(ctx context.Context, fn func(cfg *config.Config, store *app.Store) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	store, err := o.openStore(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open state store", err)
	}
	defer store.Close()

	return fn(cfg, store)
}
