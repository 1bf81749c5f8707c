package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "gapscout",
	Short: "Find manual workflows people complain about and analyse how to automate them",
	Long: `gapscout searches Reddit, Twitter and Quora for discussions about a manual
workflow, asks an AI model for an automation analysis grounded in them and
stores the result.

Run "gapscout serve" to start the API, then use the other commands as a client.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(problemsCmd)
	rootCmd.AddCommand(subredditsCmd)
	rootCmd.AddCommand(searchesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
