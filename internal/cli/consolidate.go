package cli

import (
	"fmt"

	"github.com/rcliao/engram/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge, generalize and prune memories",
		Run:   runConsolidate,
	}

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	a := mustOpen(cmd, false)
	defer a.Close()

	res, err := a.eng.Consolidate(cmd.Context(), engine.TriggerManual)
	if err != nil {
		if res != nil {
			printJSON(cmd, res)
		}
		exitErr("consolidate", err)
	}

	if formatFlag == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: merged %d, generalized %d, pruned %d, promoted %d (total %d)\n",
			res.Path, res.Merged, res.Generalized, res.AutoPruned+res.Pruned, res.Promoted, res.Total)
		if res.Notes != "" {
			fmt.Fprintln(cmd.OutOrStdout(), res.Notes)
		}
		return
	}
	printJSON(cmd, res)
}
