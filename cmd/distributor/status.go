package main

import (
	"fmt"
	"math/big"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print ledger and on-chain campaign status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			unfinished := a.state.Unfinished()
			paid := lo.CountBy(lo.Keys(a.state.Remaining), func(addr string) bool {
				return a.state.Remaining[addr] == 0
			})
			fmt.Printf("ledger %s\n", a.state.Path())
			fmt.Printf("  recipients: %d total, %d paid off, %d outstanding\n",
				len(a.state.Remaining), paid, len(unfinished))
			fmt.Printf("  tokens outstanding: %d %s\n", a.state.TotalRemaining(), a.client.Symbol())
			fmt.Printf("  today (%s): %d sent, budget %d\n",
				a.state.DayKey, a.state.SentToday, a.state.EstDailyBudget)

			px, err := a.prices.Prices(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("prices (USD/%s): initial=%s waitlist=%s public=%s\n",
				a.client.Symbol(), px.Initial, px.Waitlist, px.Public)

			quote, wl, err := a.client.PriceInfo(ctx, a.client.Sender())
			if err != nil {
				return err
			}
			fmt.Printf("contract quote for sender: %s USD (waitlisted=%v)\n", quote, wl)

			native, err := a.client.NativeBalance(ctx)
			if err != nil {
				return err
			}
			tokens, err := a.client.TokenBalance(ctx, a.client.Sender())
			if err != nil {
				return err
			}
			fmt.Printf("sender %s: %s ETH, %s %s (wei)\n",
				a.client.Sender().Hex(), fmtEther(native), tokens, a.client.Symbol())

			info, err := a.client.ContractInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("ico %s: holds %s wei, sold %s wei, raised %s USDT-wei\n",
				a.client.ICO().Hex(), info.TokenBalance, info.TotalSold, info.TotalRaisedUsdt)
			return nil
		},
	}
}

func fmtEther(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000_000_000_000))
	return r.FloatString(6)
}
