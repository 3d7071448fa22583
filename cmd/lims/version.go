package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of lims",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lims version %s\n", strings.TrimSpace(lims.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
