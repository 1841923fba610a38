package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a memory",
		Run:   runRm,
	}

	cmd.Flags().String("id", "", "Memory id (required)")
	cmd.MarkFlagRequired("id")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")

	a := mustOpen(cmd, false)
	defer a.Close()

	if err := a.eng.Store().Remove(cmd.Context(), id); err != nil {
		exitErr("rm", err)
	}
	printJSON(cmd, map[string]any{"deleted": id})
}
