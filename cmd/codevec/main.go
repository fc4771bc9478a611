// Package main is the entry point for the codevec service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/embedhq/codevec/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "codevec",
	Short: "Code embedding ingestion service",
	Long: "codevec receives Git webhook deliveries, embeds the changed source\n" +
		"files and stores the vectors in the code_segments collection.",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(registerAccountCmd)
	rootCmd.AddCommand(registerRepoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
