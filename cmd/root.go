package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "0.1.0"

var (
	configPath string
	debugFlag  bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tinychat",
		Short:   "TinyChat — streaming LLM gateway with a code-executing agent loop",
		Version: Version,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runServe(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default tinychat.yaml)")
	cmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(modelsCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config file path: --config flag,
// TINYCHAT_CONFIG env, then ./tinychat.yaml.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("TINYCHAT_CONFIG"); p != "" {
		return p
	}
	return "tinychat.yaml"
}
