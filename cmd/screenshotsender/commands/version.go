package commands

import (
	"fmt"

	"github.com/bryanchriswhite/ScreenShotSender/internal/api"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("screenshotsender %s\n", api.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
