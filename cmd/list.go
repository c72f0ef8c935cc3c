package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ws := a.eng.ListDownloads()
			if len(ws) == 0 {
				PrintPending("no downloads")
				return nil
			}

			fmt.Println(downloadsTable(ws))

			return nil
		},
	}
}
