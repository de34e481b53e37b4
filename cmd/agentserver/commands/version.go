package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agentserver version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agentserver %s (%s)\n", Version, BuildTime)
	},
}
