package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/baronchat/baron/internal/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the service version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("baron", api.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
