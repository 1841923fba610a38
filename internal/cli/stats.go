package cli

import (
	"fmt"

	"github.com/rcliao/engram/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsOutput struct {
	*store.Stats
	DBPath   string `json:"db_path"`
	DBSizeKB int64  `json:"db_size_kb"`
	LLM      string `json:"llm"`
}

func runStats(cmd *cobra.Command, args []string) {
	a := mustOpen(cmd, true)
	defer a.Close()

	st := a.eng.Store()
	out := statsOutput{
		Stats:    st.Stats(st.Now()),
		DBPath:   a.kv.Path(),
		DBSizeKB: a.kv.SizeBytes() / 1024,
		LLM:      a.eng.LLMName(),
	}

	if formatFlag == "text" {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "memories:     %d (%d consolidated, %d patterns, %d decaying)\n",
			out.Total, out.Consolidated, out.Patterns, out.Decaying)
		fmt.Fprintf(w, "avg strength: %.2f\n", out.AvgStrength)
		if out.LastConsolidation != nil {
			fmt.Fprintf(w, "consolidated: %s\n", out.LastConsolidation.Format("2006-01-02 15:04"))
		}
		if out.NextAutoInDays != nil {
			fmt.Fprintf(w, "next auto:    %.1f days\n", *out.NextAutoInDays)
		}
		fmt.Fprintf(w, "db:           %s (%d KB)\n", out.DBPath, out.DBSizeKB)
		return
	}
	printJSON(cmd, out)
}
