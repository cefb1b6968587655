package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Copy preserved data from a backup back into the bot",
	Long: `Copy the database, media, config and customised scripts from a backup
directory back into the bot directory. Files not held by the backup are left
as they are.

Run 'nazupdate backups' to list available backups.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := newNotifier()
		upd, _, err := newUpdater(n, nil)
		if err != nil {
			return err
		}

		restored, err := upd.RestoreBackup(args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]any{"backup": args[0], "restored": restored})
		}
		PrintSuccess(fmt.Sprintf("Restored %s from %s", PrintCount(len(restored), "path", "paths"), args[0]))
		PrintList(restored, 1)
		return nil
	},
}
