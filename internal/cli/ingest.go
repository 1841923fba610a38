package cli

import (
	"fmt"

	"github.com/rcliao/engram/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Extract memories from a summary or transcript",
		Long:  "Reads text from the arguments or stdin and merges the extracted memories into the store.",
		Run:   runIngest,
	}

	cmd.Flags().StringP("mode", "m", "summary", "Extraction mode: summary or transcript")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	modeStr, _ := cmd.Flags().GetString("mode")
	mode, err := engine.ParseMode(modeStr)
	if err != nil {
		exitErr("ingest", err)
	}

	text, err := readInput(args)
	if err != nil {
		exitErr("ingest", err)
	}

	a := mustOpen(cmd, true)
	defer a.Close()

	res, err := a.eng.Ingest(cmd.Context(), text, mode)
	if err != nil {
		exitErr("ingest", err)
	}

	if formatFlag == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, skipped %d, dropped %d (total %d)\n",
			res.Created, res.Updated, res.Skipped, res.Dropped, res.Total)
		return
	}
	printJSON(cmd, res)
}
