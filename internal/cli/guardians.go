package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"guardian-recovery/internal/app"
	"guardian-recovery/internal/config"
)

type guardianRow struct {
	Identity   string    `json:"identity" yaml:"identity"`
	Weight     uint64    `json:"weight" yaml:"weight"`
	LastActive time.Time `json:"last_active" yaml:"last_active"`
	Approved   bool      `json:"approved" yaml:"approved"`
}

type guardiansView struct {
	TotalWeight uint64        `json:"total_weight" yaml:"total_weight"`
	Guardians   []guardianRow `json:"guardians" yaml:"guardians"`
}

func (v guardiansView) renderText(w *tabwriter.Writer) {
	fmt.Fprintln(w, "IDENTITY\tWEIGHT\tLAST ACTIVE\tAPPROVED")
	for _, g := range v.Guardians {
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", g.Identity, g.Weight, g.LastActive.UTC().Format(time.RFC3339), g.Approved)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t\t\n", v.TotalWeight)
}

func newGuardiansCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guardians",
		Short: "List active guardians and their weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, store *app.Store) error {
				machine, err := loadMachine(cmd.Context(), store)
				if err != nil {
					return err
				}

				view := guardiansView{
					TotalWeight: machine.TotalWeight(),
					Guardians:   []guardianRow{},
				}
				for _, identity := range machine.Guardians() {
					info := machine.GuardianInfo(identity)
					view.Guardians = append(view.Guardians, guardianRow{
						Identity:   identity.Hex(),
						Weight:     info.Weight,
						LastActive: info.LastActive,
						Approved:   machine.HasApproved(identity),
					})
				}
				return render(cmd.OutOrStdout(), opts.Format, view)
			})
		},
	}
}
