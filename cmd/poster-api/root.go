package main

import (
	"github.com/spf13/cobra"

	"github.com/maptoposter/poster-api/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "poster-api",
	Short: "City map poster service",
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cli.NewCmdCache())
}
