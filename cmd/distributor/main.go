// distributor is the presale operations tool: paced token distribution
// campaigns, purchase-bonus crediting, CSV ledger imports and operator test
// purchases, all driven by environment configuration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.4.1"

func main() {
	// .env is optional; real deployments export the environment directly.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "distributor",
		Short:         "Presale token distribution and operations tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		runCmd(),
		bonusCmd(),
		importCmd(),
		statusCmd(),
		buyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the distributor version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println("distributor", version)
			},
		},
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
