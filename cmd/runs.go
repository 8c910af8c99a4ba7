package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velocitycareerlabs/data-loader/pkg/storage"
)

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List issuing runs recorded in the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("history-db")
		if dbPath == "" {
			dbPath = viper.GetString("historydb")
		}
		if dbPath == "" {
			return fmt.Errorf("no history database configured, pass --history-db")
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("history database not found: %s", dbPath)
		}

		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tMODE\tROWS\tDISCLOSURE\tDID\tCSV")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				r.StartedAt.Local().Format(time.DateTime), r.Mode, r.RowCount, r.DisclosureID, r.DID, r.CSVPath)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().String("history-db", "", "Path to the sqlite run-history database")
}
