package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tokenops/presale-distributor/internal/purchase"
)

func buyCmd() *cobra.Command {
	var (
		methodName string
		amountStr  string
		refHex     string
	)
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Execute a test purchase through the ICO contract",
		Long: "Executes one purchase with the configured sender wallet. Intended for\n" +
			"smoke-testing a deployment; accepted methods: " + strings.Join(purchase.Symbols(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			method, err := purchase.ByName(methodName)
			if err != nil {
				return err
			}
			// Non-mainnet deployments point the method at their own token.
			if override := strings.TrimSpace(os.Getenv("PAY_TOKEN_" + method.Symbol)); override != "" {
				if !common.IsHexAddress(override) {
					return errors.Newf("bad PAY_TOKEN_%s %q", method.Symbol, override)
				}
				method.Token = common.HexToAddress(override)
			}
			amount, err := decimal.NewFromString(amountStr)
			if err != nil {
				return errors.Wrapf(err, "bad amount %q", amountStr)
			}
			var referrer common.Address
			if refHex != "" {
				if !common.IsHexAddress(refHex) {
					return errors.Newf("bad referrer address %q", refHex)
				}
				referrer = common.HexToAddress(refHex)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			hash, err := purchase.Buy(ctx, a.client, method, amount, referrer)
			if err != nil {
				return err
			}
			fmt.Printf("purchase confirmed: %s %s, tx %s\n", amount, method.Symbol, hash.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&methodName, "method", "USDT", "payment method")
	cmd.Flags().StringVar(&amountStr, "amount", "", "amount in the payment currency")
	cmd.Flags().StringVar(&refHex, "referrer", "", "optional referrer address")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
