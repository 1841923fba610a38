package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "briefing",
		Short: "Print the session briefing",
		Long:  "Prints the stored briefing. With --regenerate, rebuilds it from the strongest memories first.",
		Run:   runBriefing,
	}

	cmd.Flags().BoolP("regenerate", "r", false, "Rebuild the briefing before printing")

	RootCmd.AddCommand(cmd)
}

func runBriefing(cmd *cobra.Command, args []string) {
	regen, _ := cmd.Flags().GetBool("regenerate")

	a := mustOpen(cmd, true)
	defer a.Close()

	if regen {
		res, err := a.eng.RegenerateBriefing(cmd.Context())
		if err != nil {
			exitErr("briefing", err)
		}
		if formatFlag != "text" {
			printJSON(cmd, res)
			return
		}
	}

	text := a.eng.Store().Briefing()
	if formatFlag == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return
	}
	printJSON(cmd, map[string]any{"text": text})
}
