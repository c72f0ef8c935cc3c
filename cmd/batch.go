package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/NamanBalaji/mmsdl/internal/engine"
)

type BatchEntry struct {
	URL      string `yaml:"url"`
	Title    string `yaml:"title,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
	Priority int    `yaml:"priority,omitempty"`
}

type BatchFile struct {
	Downloads []BatchEntry `yaml:"downloads"`
}

var errEmptyBatch = errors.New("no valid downloads found in the batch file")

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every stream listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading batch file: %w", err)
			}

			entries, err := parseBatch(data)
			if err != nil {
				return err
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := make([]uuid.UUID, 0, len(entries))
			for _, entry := range entries {
				id, err := a.eng.AddDownload(entry.URL, engine.DownloadOptions{
					Title:    entry.Title,
					Dir:      entry.Dir,
					Priority: entry.Priority,
				})
				if err != nil {
					PrintError(fmt.Sprintf("%s: %v", entry.URL, err))
					continue
				}

				ids = append(ids, id)
			}

			if len(ids) == 0 {
				return errEmptyBatch
			}

			PrintPending(fmt.Sprintf("downloading %d streams with %d workers", len(ids), a.cfg.MaxConcurrentDownloads))

			return a.wait(ids)
		},
	}
}

// parseBatch decodes a batch file and drops entries without a URL.
func parseBatch(data []byte) ([]BatchEntry, error) {
	var file BatchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}

	entries := make([]BatchEntry, 0, len(file.Downloads))
	for i, entry := range file.Downloads {
		entry.URL = strings.TrimSpace(entry.URL)
		if entry.URL == "" {
			PrintWarning(fmt.Sprintf("entry %d has no url, skipping", i+1))
			continue
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, errEmptyBatch
	}

	return entries, nil
}
