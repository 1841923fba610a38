package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rcliao/engram/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Replace the store with a JSON backup",
		Long:  "Reads a backup from the given file or stdin. Every existing memory, the meta record and the briefing are replaced.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	cmd.Flags().Bool("yes", false, "Confirm replacing the current store")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("import", fmt.Errorf("this replaces every memory; pass --yes to confirm"))
	}

	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("import", err)
		}
		defer f.Close()
		r = f
	}

	var b model.Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		exitErr("decode", err)
	}

	a := mustOpen(cmd, false)
	defer a.Close()

	n, err := a.eng.Import(cmd.Context(), &b)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(cmd, map[string]any{"imported": n})
}
