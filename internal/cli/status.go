package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"guardian-recovery/internal/app"
	"guardian-recovery/internal/config"
	"guardian-recovery/internal/recovery"
)

type statusView struct {
	Phase             string    `json:"phase" yaml:"phase"`
	Owner             string    `json:"owner" yaml:"owner"`
	Signer            string    `json:"signer" yaml:"signer"`
	RequiredWeight    uint64    `json:"required_weight" yaml:"required_weight"`
	TotalWeight       uint64    `json:"total_weight" yaml:"total_weight"`
	Delay             string    `json:"delay" yaml:"delay"`
	Guardians         int       `json:"guardians" yaml:"guardians"`
	Target            string    `json:"target,omitempty" yaml:"target,omitempty"`
	InitiatedAt       time.Time `json:"initiated_at,omitzero" yaml:"initiated_at,omitempty"`
	ApprovableAt      time.Time `json:"approvable_at,omitzero" yaml:"approvable_at,omitempty"`
	Remaining         string    `json:"remaining,omitempty" yaml:"remaining,omitempty"`
	AccumulatedWeight uint64    `json:"accumulated_weight" yaml:"accumulated_weight"`
	Approvals         int       `json:"approvals" yaml:"approvals"`
}

func (v statusView) renderText(w *tabwriter.Writer) {
	fmt.Fprintf(w, "phase\t%s\n", v.Phase)
	fmt.Fprintf(w, "owner\t%s\n", v.Owner)
	fmt.Fprintf(w, "signer\t%s\n", v.Signer)
	fmt.Fprintf(w, "threshold\t%d of %d\n", v.RequiredWeight, v.TotalWeight)
	fmt.Fprintf(w, "delay\t%s\n", v.Delay)
	fmt.Fprintf(w, "guardians\t%d\n", v.Guardians)
	if v.Target == "" {
		return
	}
	fmt.Fprintf(w, "target\t%s\n", v.Target)
	fmt.Fprintf(w, "initiated at\t%s\n", v.InitiatedAt.UTC().Format(time.RFC3339))
	if !v.ApprovableAt.IsZero() {
		fmt.Fprintf(w, "approvable at\t%s\n", v.ApprovableAt.UTC().Format(time.RFC3339))
	}
	if v.Remaining != "" {
		fmt.Fprintf(w, "remaining\t%s\n", v.Remaining)
	}
	fmt.Fprintf(w, "approved weight\t%d (%d approvals)\n", v.AccumulatedWeight, v.Approvals)
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted recovery status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, store *app.Store) error {
				machine, err := loadMachine(cmd.Context(), store)
				if err != nil {
					return err
				}

				overview := machine.Overview()
				view := statusView{
					Phase:             string(overview.Phase),
					Owner:             overview.Owner.Hex(),
					Signer:            overview.Signer.Hex(),
					RequiredWeight:    overview.RequiredWeight,
					TotalWeight:       overview.TotalWeight,
					Delay:             machine.Delay().String(),
					Guardians:         len(machine.Guardians()),
					AccumulatedWeight: overview.AccumulatedWeight,
					Approvals:         overview.Approvals,
					ApprovableAt:      overview.ApprovableAt,
				}
				if overview.Pending {
					view.Remaining = machine.DelayRemaining(time.Now()).Truncate(time.Second).String()
				}
				if overview.Target != (common.Address{}) {
					view.Target = overview.Target.Hex()
					view.InitiatedAt = overview.InitiatedAt
				}
				return render(cmd.OutOrStdout(), opts.Format, view)
			})
		},
	}
}

// loadMachine rebuilds a read-only machine from the persisted state.
func loadMachine(ctx context.Context, store *app.Store) (*recovery.Machine, error) {
	state, ok, err := store.State.Load(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read recovery state", err)
	}
	if !ok {
		return nil, NewExitError(ExitFailure, "no recovery state persisted; start the server once to bootstrap it")
	}

	machine, err := recovery.FromState(state)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "persisted recovery state is invalid", err)
	}
	return machine, nil
}
