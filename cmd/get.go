package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/mmsdl/internal/engine"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [URI]",
		Short: "Download one mms:// stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.eng.AddDownload(args[0], engine.DownloadOptions{
				Title:    title,
				Dir:      dir,
				Priority: priority,
			})
			if err != nil {
				return err
			}

			PrintPending("downloading " + args[0])

			return a.wait([]uuid.UUID{id})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title used in the output file name")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (default from config)")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Queue priority; higher starts first")

	return cmd
}
