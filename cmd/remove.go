package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	var deleteFile bool

	cmd := &cobra.Command{
		Use:   "remove [ID]...",
		Short: "Forget downloads, canceling unfinished ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			var failed int
			for _, id := range ids {
				if err := a.eng.RemoveDownload(id, deleteFile); err != nil {
					failed++
					PrintError(fmt.Sprintf("%s: %v", id, err))
					continue
				}

				PrintSuccess("removed " + id.String())
			}

			if failed > 0 {
				return fmt.Errorf("%d downloads could not be removed", failed)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&deleteFile, "delete-file", false, "Also delete the downloaded file")

	return cmd
}
