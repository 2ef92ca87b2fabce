// Package cli holds the explorer command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// releaseVersion is set through Execute by main
var releaseVersion = "dev"

var (
	configFile  string
	backendURL  string
	llmProvider string

	rootCmd = &cobra.Command{
		Use:   "explorer",
		Short: "Explore the parameter neighborhood of an image generation",
		Long: `explorer drives a local diffusion backend: it takes a center set of
generation parameters, produces 8 nearby variations and renders them one by one.

Run "explorer serve" for the web UI and API, or "explorer explore" for a
one-shot batch in the terminal.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// flags win over the environment that config.Load reads
			if configFile != "" {
				_ = os.Setenv("EXPLORER_CONFIG", configFile)
			}
			if backendURL != "" {
				_ = os.Setenv("BACKEND_URL", backendURL)
			}
			if llmProvider != "" {
				_ = os.Setenv("LLM_PROVIDER", llmProvider)
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "explorer yaml config file (default $EXPLORER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "diffusion backend URL (default $BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&llmProvider, "llm-provider", "", "prompt rewrite provider: openai or gemini (default $LLM_PROVIDER)")

	rootCmd.AddCommand(serveCmd, exploreCmd, tokenCmd, versionCmd)
}

// Execute runs the command tree
func Execute(version string) error {
	releaseVersion = version
	return rootCmd.Execute()
}
