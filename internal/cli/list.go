package cli

import (
	"fmt"

	"github.com/rcliao/engram/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Run:   runList,
	}

	cmd.Flags().StringP("query", "q", "", "Filter by content or tag substring")
	cmd.Flags().StringP("sort", "s", store.SortStrength, "Sort order: strength, recent, access")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	query, _ := cmd.Flags().GetString("query")
	sortBy, _ := cmd.Flags().GetString("sort")
	limit, _ := cmd.Flags().GetInt("limit")

	switch sortBy {
	case store.SortStrength, store.SortRecent, store.SortAccess:
	default:
		exitErr("list", fmt.Errorf("unknown sort %q", sortBy))
	}
	if limit < 0 {
		exitErr("list", fmt.Errorf("limit must not be negative"))
	}

	a := mustOpen(cmd, true)
	defer a.Close()

	st := a.eng.Store()
	items := st.List(store.ListParams{Query: query, Sort: sortBy, Limit: limit}, st.Now())

	if formatFlag == "text" {
		for _, it := range items {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %.2f %-8s %s\n", it.ID, it.Strength, it.Tier, it.Content)
		}
		return
	}
	printJSON(cmd, items)
}
