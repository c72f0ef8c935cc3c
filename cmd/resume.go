package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [ID]...",
		Short: "Resume stopped downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			resumed := make([]uuid.UUID, 0, len(ids))
			for _, id := range ids {
				if err := a.eng.ResumeDownload(id); err != nil {
					PrintError(fmt.Sprintf("%s: %v", id, err))
					continue
				}

				resumed = append(resumed, id)
			}

			if len(resumed) == 0 {
				return fmt.Errorf("nothing to resume")
			}

			return a.wait(resumed)
		},
	}
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid download id %q: %w", arg, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}
