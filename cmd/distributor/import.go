package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Merge CSV_PATH into the ledger without sending anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.importCSV()
			if err != nil {
				return err
			}
			fmt.Printf("merged: %d new, %d topped up, %d unchanged; %d tokens outstanding\n",
				rep.NewRecipients, rep.ToppedUp, rep.Unchanged, a.state.TotalRemaining())
			return nil
		},
	}
}
