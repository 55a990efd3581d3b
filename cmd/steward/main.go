package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward - AI agent action control plane",
	Long:  "Steward sits between AI agents and the actions they take, providing budget enforcement, human approval gates, natural-language tool dispatch, sandboxed tool execution, and post-hoc verification of agent work.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/steward.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
