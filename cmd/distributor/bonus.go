package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokenops/presale-distributor/internal/bonus"
)

func bonusCmd() *cobra.Command {
	var (
		fromBlock uint64
		live      bool
	)
	cmd := &cobra.Command{
		Use:   "bonus",
		Short: "Scan purchase events and credit stage bonuses into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			params, err := a.prices.Params(ctx)
			if err != nil {
				return err
			}
			rep, err := bonus.Run(ctx, bonus.Config{
				StagePcts: a.cfg.BonusStagePcts,
				FromBlock: fromBlock,
				Live:      live,
			}, a.client, params, a.state, a.log)
			if err != nil {
				return err
			}

			fmt.Printf("scanned blocks %d..%d: %d purchases\n", rep.FromBlock, rep.ToBlock, len(rep.Entries))
			for _, e := range rep.Entries {
				fmt.Printf("  %s stage=%d pct=%d bought=%d bonus=%d waitlisted=%v tx=%s\n",
					e.Buyer, e.Stage, e.Percent, e.Purchased, e.Bonus, e.Waitlisted, e.TxHash)
			}
			if live {
				fmt.Printf("credited %d tokens into %s\n", rep.Credited, a.state.Path())
			} else {
				fmt.Println("dry run: nothing credited (use --live)")
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "scan from this block instead of the ledger cursor")
	cmd.Flags().BoolVar(&live, "live", false, "credit bonuses and advance the cursor")
	return cmd
}
