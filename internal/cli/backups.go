package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/nazupdate/internal/notify"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups kept from failed updates",
	Long: `List the backup directories in the bot directory.

A backup is kept whenever an update fails and removed after the next
successful update.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, _, err := newUpdater(notify.Discard, nil)
		if err != nil {
			return err
		}

		infos, err := upd.Backups()
		if err != nil {
			return err
		}

		if jsonOutput {
			type backupJSON struct {
				Name      string `json:"name"`
				Path      string `json:"path"`
				SizeBytes uint64 `json:"size_bytes"`
				Modified  string `json:"modified"`
			}
			out := make([]backupJSON, 0, len(infos))
			for _, i := range infos {
				out = append(out, backupJSON{Name: i.Name, Path: i.Path, SizeBytes: i.Size, Modified: i.ModTime.UTC().Format("2006-01-02T15:04:05Z")})
			}
			return outputJSON(cmd.OutOrStdout(), out)
		}

		PrintSection(fmt.Sprintf("Backups (%s)", PrintCount(len(infos), "backup", "backups")))
		if len(infos) == 0 {
			PrintEmptyState("No backups found")
			return nil
		}
		rows := make([][]string, 0, len(infos))
		for _, i := range infos {
			rows = append(rows, []string{i.Name, i.HumanSize(), i.ModTime.Local().Format("2006-01-02 15:04")})
		}
		PrintTable([]string{"NAME", "SIZE", "MODIFIED"}, rows)
		return nil
	},
}
