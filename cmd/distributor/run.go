package main

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tokenops/presale-distributor/internal/distribute"
	"github.com/tokenops/presale-distributor/internal/schedule"
)

func runCmd() *cobra.Command {
	var skipImport bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the paced distribution loop until the ledger is exhausted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !skipImport && a.cfg.CSVPath != "" {
				if _, err := a.importCSV(); err != nil {
					return err
				}
			}

			var whitelist map[string]bool
			if len(a.cfg.Whitelist) > 0 {
				whitelist = make(map[string]bool, len(a.cfg.Whitelist))
				for _, w := range a.cfg.Whitelist {
					whitelist[common.HexToAddress(w).Hex()] = true
				}
			}

			var notifier distribute.Notifier
			if a.telegram != nil {
				notifier = telegramNotifier{tg: a.telegram, animation: a.cfg.TelegramAnimation}
			}

			engine := distribute.New(distribute.Config{
				Chunk: schedule.ChunkConfig{
					MinTokens: a.cfg.MinChunkTokens,
					MaxTokens: a.cfg.MaxChunkTokens,
					MaxUSD:    decimal.NewFromFloat(a.cfg.MaxChunkUSD),
				},
				Windows: schedule.Windows{
					DayMin:   time.Duration(a.cfg.DayMinDelaySec) * time.Second,
					DayMax:   time.Duration(a.cfg.DayMaxDelaySec) * time.Second,
					NightMin: time.Duration(a.cfg.NightMinDelaySec) * time.Second,
					NightMax: time.Duration(a.cfg.NightMaxDelaySec) * time.Second,
				},
				Location:      a.location,
				DailyCap:      a.cfg.DailyCap,
				TargetDays:    a.cfg.TargetDays,
				AutoWithdraw:  a.cfg.AutoWithdraw,
				Confirmations: a.cfg.Confirmations,
				Whitelist:     whitelist,
				MaxPerAddress: a.cfg.MaxPerAddressTokens,
				GasBackoffMin: time.Duration(a.cfg.GasBackoffMinSec) * time.Second,
				GasBackoffMax: time.Duration(a.cfg.GasBackoffMaxSec) * time.Second,
				ErrorFloor:    time.Duration(a.cfg.ErrorFloorSec) * time.Second,
			}, a.client, a.prices, a.state, notifier, a.log)

			return engine.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipImport, "skip-import", false, "do not merge CSV_PATH before running")
	return cmd
}
