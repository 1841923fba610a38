package cli

import (
	"fmt"
	"strings"

	"github.com/rcliao/engram/internal/store"
	"github.com/rcliao/engram/internal/strength"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a memory",
		Run:   runGet,
	}

	cmd.Flags().String("id", "", "Memory id (required)")
	cmd.MarkFlagRequired("id")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")

	a := mustOpen(cmd, true)
	defer a.Close()

	st := a.eng.Store()
	m, err := st.Get(id)
	if err != nil {
		exitErr("get", err)
	}
	s := strength.Of(m, st.Now())
	item := store.Scored{Memory: m, Strength: s, Tier: strength.Tier(s)}

	if formatFlag == "text" {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  [%s %.2f]\n%s\n", item.ID, item.Tier, item.Strength, item.Content)
		if len(item.Tags) > 0 {
			fmt.Fprintf(out, "tags: %s\n", strings.Join(item.Tags, ", "))
		}
		return
	}
	printJSON(cmd, item)
}
