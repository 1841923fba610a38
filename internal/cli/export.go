package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories, meta and briefing as a JSON backup",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	a := mustOpen(cmd, false)
	defer a.Close()

	st := a.eng.Store()
	printJSON(cmd, st.Export(st.Now()))
}
