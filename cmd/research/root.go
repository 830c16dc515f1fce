package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	envFile    string
	verbose    bool
	maxRounds  int
	maxConcurr int
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "research",
		Short: "research — a dynamic multi-agent research orchestrator",
		Long:  "research runs a Lead-controlled team of subagent researchers against an open-ended query and produces a cited report.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file of overrides")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().IntVar(&maxRounds, "max-rounds", 0, "override max_rounds (0 = use config default)")
	root.PersistentFlags().IntVar(&maxConcurr, "max-concurrent", 0, "override max_concurrent (0 = use config default)")

	root.AddCommand(runCmd())
	root.AddCommand(versionCmd())

	return root
}

var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("research " + version)
		},
	}
}
