package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"guardian-recovery/internal/app"
	"guardian-recovery/internal/config"
)

type migrateView struct {
	Driver      string `json:"driver" yaml:"driver"`
	Initialized bool   `json:"initialized" yaml:"initialized"`
}

func (v migrateView) renderText(w *tabwriter.Writer) {
	fmt.Fprintf(w, "store\t%s\n", v.Driver)
	fmt.Fprintf(w, "schema\tready\n")
	fmt.Fprintf(w, "state\t%s\n", initializedLabel(v.Initialized))
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the state store schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, store *app.Store) error {
				_, ok, err := store.State.Load(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read recovery state", err)
				}
				return render(cmd.OutOrStdout(), opts.Format, migrateView{Driver: store.Driver, Initialized: ok})
			})
		},
	}
}

func initializedLabel(ok bool) string {
	if ok {
		return "initialized"
	}
	return "empty (bootstrapped on first server start)"
}
