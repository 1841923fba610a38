package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reinforce",
		Short: "Record an access to a memory",
		Run:   runReinforce,
	}

	cmd.Flags().String("id", "", "Memory id (required)")
	cmd.MarkFlagRequired("id")

	RootCmd.AddCommand(cmd)
}

func runReinforce(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")

	a := mustOpen(cmd, false)
	defer a.Close()

	m, err := a.eng.Store().Reinforce(cmd.Context(), id)
	if err != nil {
		exitErr("reinforce", err)
	}
	printJSON(cmd, m)
}
