package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every memory and the briefing",
		Run:   runReset,
	}

	cmd.Flags().Bool("yes", false, "Confirm the reset")

	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("reset", fmt.Errorf("this deletes every memory; pass --yes to confirm"))
	}

	a := mustOpen(cmd, false)
	defer a.Close()

	if err := a.eng.Reset(cmd.Context()); err != nil {
		exitErr("reset", err)
	}
	printJSON(cmd, map[string]any{"reset": true})
}
